package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"

	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/logger"
)

// Header 数据集CSV表头，由构建工具写入，机器人只读消费。
var Header = []string{"ID", "Twitter URL", "Local Image Path", "Reply Text"}

// Row 数据集中的一行素材。ImagePath 可能是构建失败时写入的占位串而非真实路径。
type Row struct {
	ID        int
	TweetURL  string
	ImagePath string
	ReplyText string
}

// Dataset 回复素材数据集。随机选取在 [1, maxID] 内均匀采样，
// maxID 需随数据集规模人工同步（配置项 DATASET_MAX_ID）。
type Dataset struct {
	path  string
	maxID int
	rng   *rand.Rand
}

func New(path string, maxID int, rng *rand.Rand) *Dataset {
	return &Dataset{path: path, maxID: maxID, rng: rng}
}

// PickRandom 随机选取一行素材，返回图片路径和回复文案。
// 随机ID在数据集中不存在（构建时跳过的空洞）或文件读取失败时 ok 为 false。
// 每次调用线性扫描整个CSV，数据集规模小，以简单换性能。
func (d *Dataset) PickRandom() (imagePath, replyText string, ok bool) {
	target := d.rng.Intn(d.maxID) + 1

	row, err := d.findByID(target)
	if err != nil {
		logger.Errorf("[Dataset] 读取数据集失败: %v", err)
		return "", "", false
	}
	if row == nil {
		return "", "", false
	}
	return row.ImagePath, row.ReplyText, true
}

// findByID 顺序扫描CSV，返回首个ID匹配的行；未找到时返回 nil。
func (d *Dataset) findByID(id int) (*Row, error) {
	file, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("打开数据集 %s 失败: %w", d.path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	// 跳过表头
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("读取数据行失败: %w", err)
		}
		if len(record) < 4 {
			continue
		}
		rowID, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}
		if rowID == id {
			return &Row{
				ID:        rowID,
				TweetURL:  record[1],
				ImagePath: record[2],
				ReplyText: record[3],
			}, nil
		}
	}
}
