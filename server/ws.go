package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：容量把关 → 登记 → 启动读写泵
// 握手（Hello）由 Tick 第 5 步统一发出，这里只投递 join 事件
func (g *Game) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("upgrade error: %v", err)
		return
	}

	c, err := g.registry.Accept(ws)
	if err != nil {
		// 容量已满：直接关断，不发任何握手
		Log.Warnf("connection rejected: %v", err)
		_ = ws.Close()
		return
	}
	Log.Infof("connection accepted: id=%d remote=%s", c.ID, ws.RemoteAddr())
	g.events.AddJoin(c.ID)

	go c.writePump()
	go g.readPump(c)
}

// readPump 读取入站帧：解码校验通过则投递事件，否则断开
// 读泵退出（对端断开/出错/帧非法）即摘除连接并投递 leave 事件
func (g *Game) readPump(c *Conn) {
	defer func() {
		g.registry.Remove(c.ID)
		g.events.AddLeave(c.ID)
	}()
	ws := c.ws
	ws.SetReadLimit(1 << 20) // 1MB
	_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		mt, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			// 协议只有二进制帧；文本帧视同非法，断开
			g.tel.IncMalformed()
			Log.Warnf("non-binary frame from id=%d, closing", c.ID)
			return
		}
		g.tel.AddRecv(len(payload))
		if !g.dispatch(c, payload) {
			g.tel.IncMalformed()
			Log.Warnf("malformed frame from id=%d (len=%d), closing", c.ID, len(payload))
			return
		}
	}
}

// dispatch 纯解码 + 投递，不在 I/O 协程上执行任何业务逻辑
// 返回 false 表示帧未通过任何已知布局的校验
func (g *Game) dispatch(c *Conn, buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	switch MsgTag(buf[0]) {
	case TagPing:
		ts, ok := DecodePing(buf)
		if !ok {
			return false
		}
		g.events.AddPing(c.ID, ts)
	case TagSetName:
		// 帧内自带 sender id，但请求一律按到达的连接归属
		_, packed, ok := DecodeSetName(buf)
		if !ok {
			return false
		}
		g.events.AddNameRequest(c.ID, UnpackName(packed))
	case TagBalloonPop:
		_, balloonID, ok := DecodePopRequest(buf)
		if !ok {
			return false
		}
		g.events.AddPop(balloonID, c.ID)
	default:
		return false
	}
	return true
}
