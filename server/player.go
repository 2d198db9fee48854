package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnID 连接唯一标识：进程内单调递增，关闭后永不复用
type ConnID uint32

const writeWait = 5 * time.Second

// Conn 一条客户端连接的服务端权威状态与发送端
//
// Name 与 Score 只由 Tick 协程写入（单写者模型）；网络协程只通过
// Enqueue 投递出站字节，绝不直接改动这两个字段。
type Conn struct {
	ID    ConnID
	Name  string // 空串表示尚未通过名字协商
	Score uint32

	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewConn(id ConnID, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:   id,
		ws:   ws,
		send: make(chan []byte, 64),
	}
}

// Named 是否已完成名字协商；只有已命名连接参与游戏广播
func (c *Conn) Named() bool { return c.Name != "" }

// Enqueue 非阻塞投递出站消息；队列满或连接已关则丢弃
// 宁可丢一帧旧消息，也不让慢客户端拖住 Tick，下一帧状态自会覆盖
func (c *Conn) Enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Close 关闭发送队列与底层连接；幂等
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	if c.ws != nil {
		_ = c.ws.Close()
	}
}

// writePump 独立协程：从 send 队列写出二进制帧，出错即退出
func (c *Conn) writePump() {
	defer func() {
		if c.ws != nil {
			_ = c.ws.Close()
		}
	}()
	for msg := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
}
