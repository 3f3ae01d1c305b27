package server

import (
	"fmt"
	"os"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Registration 中继在 Consul 中的服务登记参数
type Registration struct {
	ConsulAddr string // 例如 "consul:8500"
	Service    string
	Port       int    // QUIC 端口（UDP）
	ALPN       string // 作为 tag 写入，便于客户端筛选
	HealthURL  string // 管理接口的 /healthz，为空则不挂健康检查
}

func (r Registration) serviceID() string {
	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	return fmt.Sprintf("%s-%s-%d", r.Service, hostname, r.Port)
}

func (r Registration) agentRegistration() *consul.AgentServiceRegistration {
	reg := &consul.AgentServiceRegistration{
		ID:   r.serviceID(),
		Name: r.Service,
		Port: r.Port,
		Tags: []string{"quic", "alpn=" + r.ALPN},
	}
	if r.HealthURL != "" {
		reg.Check = &consul.AgentServiceCheck{
			HTTP:                           r.HealthURL,
			Timeout:                        "5s",
			Interval:                       "10s",
			DeregisterCriticalServiceAfter: "1m",
		}
	}
	return reg
}

// RegisterService 向 Consul 登记中继，返回注销函数
func RegisterService(r Registration, log *zap.SugaredLogger) (func(), error) {
	cfg := consul.DefaultConfig()
	cfg.Address = r.ConsulAddr
	client, err := consul.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	reg := r.agentRegistration()
	if err := client.Agent().ServiceRegister(reg); err != nil {
		return nil, fmt.Errorf("consul register %s: %w", reg.ID, err)
	}
	log.Infof("registered service %q in consul as %s", r.Service, reg.ID)

	return func() {
		if err := client.Agent().ServiceDeregister(reg.ID); err != nil {
			log.Warnf("consul deregister %s: %v", reg.ID, err)
		}
	}, nil
}
