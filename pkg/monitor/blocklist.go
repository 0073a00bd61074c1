package monitor

import (
	"sync"
)

// Blocklist IP和用户封禁集合
// 查询是O(1)，接入层在处理每个请求前都会调用
type Blocklist struct {
	mu    sync.RWMutex
	ips   map[string]string // ip -> 封禁原因
	users map[string]string
}

func NewBlocklist() *Blocklist {
	return &Blocklist{
		ips:   make(map[string]string),
		users: make(map[string]string),
	}
}

// BlockIP 封禁IP，幂等，返回是否发生了状态变化
func (b *Blocklist) BlockIP(ip, reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ips[ip]; ok {
		return false
	}
	b.ips[ip] = reason
	return true
}

// UnblockIP 解除封禁，返回是否发生了状态变化
func (b *Blocklist) UnblockIP(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ips[ip]; !ok {
		return false
	}
	delete(b.ips, ip)
	return true
}

func (b *Blocklist) BlockUser(userID, reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[userID]; ok {
		return false
	}
	b.users[userID] = reason
	return true
}

func (b *Blocklist) UnblockUser(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[userID]; !ok {
		return false
	}
	delete(b.users, userID)
	return true
}

func (b *Blocklist) IsIPBlocked(ip string) bool {
	b.mu.RLock()
	_, ok := b.ips[ip]
	b.mu.RUnlock()
	return ok
}

func (b *Blocklist) IsUserBlocked(userID string) bool {
	b.mu.RLock()
	_, ok := b.users[userID]
	b.mu.RUnlock()
	return ok
}

func (b *Blocklist) IPCount() int {
	b.mu.RLock()
	n := len(b.ips)
	b.mu.RUnlock()
	return n
}

func (b *Blocklist) UserCount() int {
	b.mu.RLock()
	n := len(b.users)
	b.mu.RUnlock()
	return n
}
