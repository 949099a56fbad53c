package dataset

import (
	"encoding/csv"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constSource 固定取值的随机源，让测试可以精确控制选中的ID
type constSource struct{ v int64 }

func (s constSource) Int63() int64 { return s.v << 32 }
func (s constSource) Seed(int64)   {}

func writeTestCSV(t *testing.T, rows [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "twitter_data.csv")

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	writer := csv.NewWriter(file)
	require.NoError(t, writer.Write(Header))
	require.NoError(t, writer.WriteAll(rows))
	return path
}

func TestPickRandomFound(t *testing.T) {
	path := writeTestCSV(t, [][]string{
		{"1", "https://twitter.com/a/status/100", "images/twitter_100.jpg", "look at this rat"},
		{"2", "https://twitter.com/a/status/200", "images/twitter_200.jpg", "another rat"},
	})

	// 固定随机源选中ID 2
	d := New(path, 514, rand.New(constSource{1}))
	imagePath, replyText, ok := d.PickRandom()
	assert.True(t, ok)
	assert.Equal(t, "images/twitter_200.jpg", imagePath)
	assert.Equal(t, "another rat", replyText)
}

func TestPickRandomGap(t *testing.T) {
	rows := make([][]string, 0, 514)
	for i := 1; i <= 514; i++ {
		rows = append(rows, []string{
			strconv.Itoa(i), "https://twitter.com/a/status/100", "images/a.jpg", "caption",
		})
	}
	path := writeTestCSV(t, rows)

	// 随机源选中ID 999，数据集只有1~514，应返回未找到
	d := New(path, 1000, rand.New(constSource{998}))
	_, _, ok := d.PickRandom()
	assert.False(t, ok)
}

func TestPickRandomMissingFile(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "missing.csv"), 10, rand.New(constSource{0}))
	_, _, ok := d.PickRandom()
	assert.False(t, ok)
}

func TestFindByID(t *testing.T) {
	path := writeTestCSV(t, [][]string{
		{"not-a-number", "url", "path", "caption"},
		{"7", "https://twitter.com/a/status/700", "images/twitter_700.jpg", "rat number seven"},
	})

	d := New(path, 7, rand.New(constSource{0}))

	t.Run("跳过非法行后命中", func(t *testing.T) {
		row, err := d.findByID(7)
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, "rat number seven", row.ReplyText)
	})

	t.Run("未找到返回nil", func(t *testing.T) {
		row, err := d.findByID(999)
		require.NoError(t, err)
		assert.Nil(t, row)
	})
}
