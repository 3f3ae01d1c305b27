package server

// Config 会话管理器的可调参数
type Config struct {
	// EchoToSender 为 true 时，位置广播也发回给发送者本人；运行期可通过 /admin/config 修改
	EchoToSender bool
}

func DefaultConfig() Config {
	return Config{EchoToSender: false}
}
