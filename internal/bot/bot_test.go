package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/bsky"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/config"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/filter"
	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/replied"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher 用于测试的列表流mock
type mockFetcher struct {
	items []bsky.FeedItem
	err   error
}

func (m *mockFetcher) FetchListFeed(ctx context.Context, listURI string, limit int) ([]bsky.FeedItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.items, nil
}

// mockDispatcher 用于测试的回复发送mock
type mockDispatcher struct {
	calls     int
	err       error
	lastText  string
	lastAlt   string
	lastReply *bsky.ReplyRef
}

func (m *mockDispatcher) SendImageReply(ctx context.Context, text string, image []byte, alt string, reply *bsky.ReplyRef) error {
	m.calls++
	m.lastText = text
	m.lastAlt = alt
	m.lastReply = reply
	return m.err
}

// mockPicker 用于测试的素材选取mock
type mockPicker struct {
	imagePath string
	replyText string
	ok        bool
}

func (m *mockPicker) PickRandom() (string, string, bool) {
	return m.imagePath, m.replyText, m.ok
}

func newTestBot(t *testing.T, fetcher *mockFetcher, dispatcher *mockDispatcher, picker *mockPicker) (*Bot, *replied.Store) {
	t.Helper()

	contentFilter, err := filter.New()
	require.NoError(t, err)

	store := replied.Load(filepath.Join(t.TempDir(), "replied_posts.json"))
	return &Bot{
		cfg:        &config.Bot{CheckInterval: 60},
		listURI:    "at://did:plc:test/app.bsky.graph.list/1",
		fetcher:    fetcher,
		dispatcher: dispatcher,
		picker:     picker,
		filter:     contentFilter,
		replied:    store,
	}, store
}

func feedItem(uri, cid, text string) bsky.FeedItem {
	return bsky.FeedItem{
		Post: bsky.Post{
			URI:    uri,
			CID:    cid,
			Author: bsky.Author{Handle: "someone.bsky.social", DisplayName: "Someone"},
			Record: &bsky.Record{Text: text},
		},
	}
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rat.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0644))
	return path
}

func TestShouldReply(t *testing.T) {
	b, _ := newTestBot(t, &mockFetcher{}, &mockDispatcher{}, &mockPicker{})

	tests := []struct {
		name   string
		item   bsky.FeedItem
		want   bool
		reason string
	}{
		{
			name:   "正常内容放行",
			item:   feedItem("at://x/1", "cid1", "Check out this cute dog photo!"),
			want:   true,
			reason: "内容适合回复",
		},
		{
			name: "无正文记录时放行",
			item: bsky.FeedItem{Post: bsky.Post{URI: "at://x/2", CID: "cid2"}},
			want: true,
			reason: "无文本内容",
		},
		{
			name:   "空文本时放行",
			item:   feedItem("at://x/3", "cid3", ""),
			want:   true,
			reason: "无文本内容",
		},
		{
			name: "敏感内容拦截",
			item: feedItem("at://x/4", "cid4", "So sorry for your loss, RIP"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := b.ShouldReply(&tt.item)
			assert.Equal(t, tt.want, got)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, reason)
			}
		})
	}
}

func TestTryReplySensitiveSkipped(t *testing.T) {
	dispatcher := &mockDispatcher{}
	b, store := newTestBot(t, &mockFetcher{}, dispatcher, &mockPicker{})

	item := feedItem("at://x/1", "cid1", "he passed away last night")
	sent := b.TryReply(context.Background(), &item, "look at this rat", writeTestImage(t))

	assert.False(t, sent)
	assert.Equal(t, 0, dispatcher.calls)
	assert.False(t, store.Contains("at://x/1"))
}

func TestTryReplyAlreadyReplied(t *testing.T) {
	dispatcher := &mockDispatcher{}
	b, store := newTestBot(t, &mockFetcher{}, dispatcher, &mockPicker{})
	require.NoError(t, store.Add("at://x/1"))

	item := feedItem("at://x/1", "cid1", "nice weather today")
	sent := b.TryReply(context.Background(), &item, "look at this rat", writeTestImage(t))

	// 已回复过的帖子不再发送，幂等
	assert.False(t, sent)
	assert.Equal(t, 0, dispatcher.calls)
}

func TestTryReplyImageMissing(t *testing.T) {
	dispatcher := &mockDispatcher{}
	b, store := newTestBot(t, &mockFetcher{}, dispatcher, &mockPicker{})

	item := feedItem("at://x/1", "cid1", "nice weather today")
	sent := b.TryReply(context.Background(), &item, "look at this rat", filepath.Join(t.TempDir(), "missing.jpg"))

	assert.False(t, sent)
	assert.Equal(t, 0, dispatcher.calls)
	assert.False(t, store.Contains("at://x/1"))
}

func TestTryReplyDispatchFailure(t *testing.T) {
	dispatcher := &mockDispatcher{err: errors.New("网络错误")}
	b, store := newTestBot(t, &mockFetcher{}, dispatcher, &mockPicker{})

	item := feedItem("at://x/1", "cid1", "nice weather today")
	sent := b.TryReply(context.Background(), &item, "look at this rat", writeTestImage(t))

	// 发送失败不记入已回复集合，下一轮仍可重试
	assert.False(t, sent)
	assert.Equal(t, 1, dispatcher.calls)
	assert.False(t, store.Contains("at://x/1"))
}

func TestTryReplySuccess(t *testing.T) {
	dispatcher := &mockDispatcher{}
	b, store := newTestBot(t, &mockFetcher{}, dispatcher, &mockPicker{})

	item := feedItem("at://x/1", "cid1", "nice weather today")
	sent := b.TryReply(context.Background(), &item, "look at this rat", writeTestImage(t))

	assert.True(t, sent)
	assert.Equal(t, 1, dispatcher.calls)
	assert.Equal(t, "look at this rat", dispatcher.lastText)
	assert.Equal(t, replyAltText, dispatcher.lastAlt)
	assert.True(t, store.Contains("at://x/1"))

	// 再次尝试同一帖子不会重复发送
	sent = b.TryReply(context.Background(), &item, "look at this rat", writeTestImage(t))
	assert.False(t, sent)
	assert.Equal(t, 1, dispatcher.calls)
}

func TestReplyAnchor(t *testing.T) {
	t.Run("顶层帖子以自身为根", func(t *testing.T) {
		item := feedItem("at://x/1", "cid1", "hello")
		ref := replyAnchor(&item)

		self := bsky.StrongRef{URI: "at://x/1", CID: "cid1"}
		assert.Equal(t, self, ref.Parent)
		assert.Equal(t, self, ref.Root)
	})

	t.Run("回复帖子沿用会话根帖", func(t *testing.T) {
		item := feedItem("at://x/2", "cid2", "hello")
		item.Reply = &bsky.ReplyContext{
			Root:   bsky.Post{URI: "at://x/root", CID: "cidroot"},
			Parent: bsky.Post{URI: "at://x/parent", CID: "cidparent"},
		}
		ref := replyAnchor(&item)

		assert.Equal(t, bsky.StrongRef{URI: "at://x/root", CID: "cidroot"}, ref.Root)
		// parent 是被回复的候选帖子本身
		assert.Equal(t, bsky.StrongRef{URI: "at://x/2", CID: "cid2"}, ref.Parent)
	})
}

func TestRunCycleFetchFailure(t *testing.T) {
	dispatcher := &mockDispatcher{}
	fetcher := &mockFetcher{err: &bsky.StatusError{StatusCode: 502, Endpoint: "getListFeed"}}
	b, _ := newTestBot(t, fetcher, dispatcher, &mockPicker{})

	// 拉取失败按本轮无帖子处理，不触发任何发送
	b.runCycle(context.Background())
	assert.Equal(t, 0, dispatcher.calls)
}

func TestRunCycleRepliesToFeed(t *testing.T) {
	imgPath := writeTestImage(t)
	dispatcher := &mockDispatcher{}
	fetcher := &mockFetcher{items: []bsky.FeedItem{
		feedItem("at://x/1", "cid1", "nice weather today"),
		feedItem("at://x/2", "cid2", "So sorry for your loss, RIP"),
	}}
	picker := &mockPicker{imagePath: imgPath, replyText: "look at this rat", ok: true}
	b, store := newTestBot(t, fetcher, dispatcher, picker)

	b.runCycle(context.Background())

	// 敏感帖子被跳过，只回复正常帖子
	assert.Equal(t, 1, dispatcher.calls)
	assert.True(t, store.Contains("at://x/1"))
	assert.False(t, store.Contains("at://x/2"))
}

func TestRunCycleNoContent(t *testing.T) {
	dispatcher := &mockDispatcher{}
	fetcher := &mockFetcher{items: []bsky.FeedItem{
		feedItem("at://x/1", "cid1", "nice weather today"),
	}}
	b, _ := newTestBot(t, fetcher, dispatcher, &mockPicker{ok: false})

	// 选不到素材时跳过该条，不发送
	b.runCycle(context.Background())
	assert.Equal(t, 0, dispatcher.calls)
}
