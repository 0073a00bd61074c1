package monitor

import (
	"sync"
	"time"

	"go-menshen/pkg/models"
)

// keyState 单个key（IP或用户）的活动缓冲和规则冷却时间戳
// activities是固定容量FIFO，超出容量时淘汰最旧的记录
type keyState struct {
	mu            sync.Mutex
	dead          bool // 被清理任务从map中摘除后置位，持有者需重新获取
	activities    []models.ActivityData
	lastTriggered map[string]time.Time // ruleID -> 最近一次触发时间
}

func newKeyState() *keyState {
	return &keyState{
		lastTriggered: make(map[string]time.Time),
	}
}

// append 追加活动，满时先淘汰最旧的一条，调用方需持有锁
func (st *keyState) append(activity models.ActivityData, capacity int) {
	if len(st.activities) >= capacity {
		overflow := len(st.activities) - capacity + 1
		st.activities = st.activities[overflow:]
	}
	st.activities = append(st.activities, activity)
}

// recentCopy 返回cutoff之后的活动副本，调用方需持有锁
func (st *keyState) recentCopy(cutoff time.Time) []models.ActivityData {
	out := make([]models.ActivityData, 0, len(st.activities))
	for _, a := range st.activities {
		if a.Timestamp.After(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

// stateMap 按key分片的状态表，map锁只保护查找和增删，
// 每个key有独立的互斥锁，不同key的写入互不串行
type stateMap struct {
	mu     sync.RWMutex
	states map[string]*keyState
}

func newStateMap() *stateMap {
	return &stateMap{states: make(map[string]*keyState)}
}

// acquire 返回已加锁的存活状态，由调用方负责解锁
// 状态可能刚被清理任务摘除，此时重新获取
func (m *stateMap) acquire(key string) *keyState {
	for {
		st := m.get(key)
		st.mu.Lock()
		if !st.dead {
			return st
		}
		st.mu.Unlock()
	}
}

func (m *stateMap) get(key string) *keyState {
	m.mu.RLock()
	st := m.states[key]
	m.mu.RUnlock()
	if st != nil {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st = m.states[key]; st == nil {
		st = newKeyState()
		m.states[key] = st
	}
	return st
}

// peek 只查找不创建
func (m *stateMap) peek(key string) (*keyState, bool) {
	m.mu.RLock()
	st, ok := m.states[key]
	m.mu.RUnlock()
	return st, ok
}

func (m *stateMap) keys() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.states))
	for k := range m.states {
		out = append(out, k)
	}
	m.mu.RUnlock()
	return out
}

func (m *stateMap) len() int {
	m.mu.RLock()
	n := len(m.states)
	m.mu.RUnlock()
	return n
}

// sweepKey 清理单个key中cutoff之前的活动和过期冷却时间戳，
// 清空后把key从map中摘除。每次只短暂持有锁，不会长时间阻塞写入
func (m *stateMap) sweepKey(key string, cutoff time.Time) {
	st, ok := m.peek(key)
	if !ok {
		return
	}

	st.mu.Lock()
	kept := st.activities[:0]
	for _, a := range st.activities {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	st.activities = kept
	for ruleID, ts := range st.lastTriggered {
		if ts.Before(cutoff) {
			delete(st.lastTriggered, ruleID)
		}
	}
	empty := len(st.activities) == 0 && len(st.lastTriggered) == 0
	st.mu.Unlock()

	if !empty {
		return
	}

	// 摘除前在双锁下复查，防止并发写入刚追加的记录丢失
	m.mu.Lock()
	if cur, ok := m.states[key]; ok && cur == st {
		cur.mu.Lock()
		if len(cur.activities) == 0 && len(cur.lastTriggered) == 0 {
			cur.dead = true
			delete(m.states, key)
		}
		cur.mu.Unlock()
	}
	m.mu.Unlock()
}
