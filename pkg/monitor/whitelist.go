package monitor

import (
	"net"
	"strings"
	"sync"

	"go-menshen/pkg/logger"
)

// Whitelist IP白名单，支持CIDR，命中的IP不参与分析也不会被封禁
type Whitelist struct {
	nets []*net.IPNet
	mu   sync.RWMutex
}

func NewWhitelist(ips []string) *Whitelist {
	w := &Whitelist{
		nets: make([]*net.IPNet, 0),
	}
	if len(ips) > 0 {
		w.Update(ips)
	}
	return w
}

func (w *Whitelist) Update(ips []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nets = make([]*net.IPNet, 0, len(ips))

	for _, ip := range ips {
		// 单个IP按/32处理
		if !strings.Contains(ip, "/") {
			ip += "/32"
		}

		_, ipnet, err := net.ParseCIDR(ip)
		if err != nil {
			logger.Log.Errorf("无效的白名单CIDR: %s, 错误: %v", ip, err)
			continue
		}
		w.nets = append(w.nets, ipnet)
	}

	logger.Log.Infof("白名单更新完成，共 %d 条记录", len(w.nets))
}

func (w *Whitelist) Contains(ipStr string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.nets) == 0 {
		return false
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	for _, ipnet := range w.nets {
		if ipnet.Contains(ip) {
			return true
		}
	}

	return false
}
