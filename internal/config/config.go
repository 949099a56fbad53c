package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Sock5Proxy struct {
	Host   string
	Port   int
	Enable bool
}

type Bluesky struct {
	ListURI  string // 监听的列表URI
	Username string
	Password string
}

type Bot struct {
	CheckInterval    int    // 轮询间隔（秒），默认 60
	RepliedPostsFile string // 已回复帖子集合的持久化文件
	DatasetFile      string // 回复素材CSV文件
	DatasetMaxID     int    // 素材ID随机取值上限，需与数据集保持同步
}

type Config struct {
	Sock5Proxy Sock5Proxy
	Bluesky    Bluesky
	Bot        Bot
}

// Load 从环境变量读取配置。filename 非空时先加载对应的 .env 文件（文件不存在不报错）。
func Load(filename string) (*Config, error) {
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if err := godotenv.Load(filename); err != nil {
				return nil, fmt.Errorf("加载环境文件 %s 失败: %w", filename, err)
			}
		}
	}

	c := &Config{
		Bluesky: Bluesky{
			ListURI:  os.Getenv("LIST_URI"),
			Username: os.Getenv("BLUESKY_USERNAME"),
			Password: os.Getenv("BLUESKY_PASSWORD"),
		},
		Bot: Bot{
			CheckInterval:    getEnvInt("CHECK_INTERVAL", 60),
			RepliedPostsFile: getEnv("REPLIED_POSTS_FILE", "replied_posts.json"),
			DatasetFile:      getEnv("DATASET_FILE", "twitter_data.csv"),
			DatasetMaxID:     getEnvInt("DATASET_MAX_ID", 514),
		},
	}

	if proxyHost := os.Getenv("SOCKS5_HOST"); proxyHost != "" {
		c.Sock5Proxy = Sock5Proxy{
			Host:   proxyHost,
			Port:   getEnvInt("SOCKS5_PORT", 1080),
			Enable: true,
		}
	}

	// 验证配置
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 Bluesky
	if c.Bluesky.ListURI == "" {
		return fmt.Errorf("LIST_URI 不能为空")
	}
	if c.Bluesky.Username == "" {
		return fmt.Errorf("BLUESKY_USERNAME 不能为空")
	}
	if c.Bluesky.Password == "" {
		return fmt.Errorf("BLUESKY_PASSWORD 不能为空")
	}

	// 验证 Bot
	if c.Bot.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL 必须大于 0")
	}
	if c.Bot.RepliedPostsFile == "" {
		return fmt.Errorf("REPLIED_POSTS_FILE 不能为空")
	}
	if c.Bot.DatasetFile == "" {
		return fmt.Errorf("DATASET_FILE 不能为空")
	}
	if c.Bot.DatasetMaxID <= 0 {
		return fmt.Errorf("DATASET_MAX_ID 必须大于 0")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
