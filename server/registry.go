package server

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrServerFull 连接数已达上限，新连接被拒绝
var ErrServerFull = errors.New("server full")

// Registry 管理所有活跃连接：分配 id、容量把关、查找与广播
//
// 连接表会被网络协程（接入/移除）和 Tick 协程（遍历发送）并发访问，
// 由读写锁保护；Conn 内部的游戏字段归 Tick 协程独占，见 player.go。
type Registry struct {
	mu     sync.RWMutex
	conns  map[ConnID]*Conn
	nextID uint32 // 单调递增，进程生命周期内永不回退
	limit  int
	tel    *Telemetry
}

func NewRegistry(limit int, tel *Telemetry) *Registry {
	return &Registry{
		conns: make(map[ConnID]*Conn),
		limit: limit,
		tel:   tel,
	}
}

// Accept 注册一个新连接并分配 id；已达容量上限则拒绝
func (r *Registry) Accept(ws *websocket.Conn) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.conns) >= r.limit {
		r.tel.IncRejected()
		return nil, ErrServerFull
	}
	id := ConnID(r.nextID)
	r.nextID++
	c := NewConn(id, ws)
	r.conns[id] = c
	r.tel.IncJoined()
	return c, nil
}

// Remove 摘除并关闭连接；对不存在的 id 是空操作
func (r *Registry) Remove(id ConnID) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if ok {
		c.Close()
		r.tel.IncLeft()
	}
}

// Lookup 按 id 查找连接
func (r *Registry) Lookup(id ConnID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Send 向单个连接投递一帧；连接不存在或队列满时返回 false
func (r *Registry) Send(id ConnID, b []byte) bool {
	c, ok := r.Lookup(id)
	if !ok {
		return false
	}
	if !c.Enqueue(b) {
		r.tel.IncDropped()
		return false
	}
	r.tel.AddSent(len(b))
	return true
}

// Broadcast 向所有满足谓词的连接投递同一帧，返回实际投递数
// 单个连接投递失败只影响它自己，不中断整轮广播
func (r *Registry) Broadcast(pred func(*Conn) bool, b []byte) int {
	sent := 0
	for _, c := range r.All() {
		if !pred(c) {
			continue
		}
		if c.Enqueue(b) {
			r.tel.AddSent(len(b))
			sent++
		} else {
			r.tel.IncDropped()
		}
	}
	return sent
}

// All 当前连接的快照切片（持读锁拷贝，调用方可安全遍历）
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Count 当前活跃连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Named 广播谓词：只发给已命名连接
func Named(c *Conn) bool { return c.Named() }
