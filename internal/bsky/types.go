package bsky

// StrongRef 帖子的强引用：URI 加内容寻址标识
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// ReplyRef 回复引用：parent 为被直接回复的帖子，root 为会话的起始帖子
type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

// Author 帖子作者信息
type Author struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

// Record 帖子正文记录。上游数据缺失时整体为 nil。
type Record struct {
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt,omitempty"`
	Reply     *ReplyRef `json:"reply,omitempty"`
}

// Post 单条帖子
type Post struct {
	URI    string  `json:"uri"`
	CID    string  `json:"cid"`
	Author Author  `json:"author"`
	Record *Record `json:"record"`
}

// ReplyContext 列表流中随帖子返回的会话上下文
type ReplyContext struct {
	Root   Post `json:"root"`
	Parent Post `json:"parent"`
}

// FeedItem 列表流中的一项。Reply 仅在帖子本身是回复时存在。
type FeedItem struct {
	Post  Post          `json:"post"`
	Reply *ReplyContext `json:"reply,omitempty"`
}

type listFeedResponse struct {
	Feed []FeedItem `json:"feed"`
}
