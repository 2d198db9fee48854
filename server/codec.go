package server

import (
	"encoding/binary"
	"math"
)

// MsgTag 消息类型标签：每条消息的第 0 字节，序号稳定，不可重排
type MsgTag byte

const (
	TagHello MsgTag = iota + 1
	TagPing
	TagPong
	TagBalloonSpawn
	TagBalloonPop
	TagSetName
	TagNameResult
	TagPlayersSnapshot
	TagPlayersJoined
	TagPlayersScores
)

// NameWidth 名字的定宽字节数：超长截断，不足右侧补零
const NameWidth = 8

// 各定长消息的总字节数（tag 含在内）；多字节数值一律小端
const (
	helloSize        = 1 + 4                 // tag + id
	pingSize         = 1 + 8                 // tag + ts(f64 毫秒)
	pongSize         = 1 + 8                 // tag + ts
	balloonSpawnSize = 1 + 8 + 4 + 4 + 4 + 2 // tag + ts + id + x + y + hue
	popRequestSize   = 1 + 8 + 4             // tag + ts + balloonID（客户端→服务端）
	popEventSize     = 1 + 8 + 4 + 4         // tag + ts + balloonID + popperID（服务端广播）
	setNameSize      = 1 + 4 + NameWidth     // tag + senderID + name
	nameResultSize   = 1 + NameWidth + 1     // tag + name + valid

	// 批量消息：tag + count(u8) + count 个定长子记录
	snapshotStride = 4 + NameWidth + 4 // id + name + score
	joinedStride   = 4 + NameWidth     // id + name
	scoresStride   = 4 + 4             // id + score
)

// verify 严格校验：长度必须逐字节吻合、标签必须一致；不吻合即拒绝，绝不截取部分解析
func verify(buf []byte, tag MsgTag, size int) bool {
	return len(buf) == size && MsgTag(buf[0]) == tag
}

// verifyBatch 校验批量消息：头部 2 字节 + count*stride 必须恰好等于总长
func verifyBatch(buf []byte, tag MsgTag, stride int) (int, bool) {
	if len(buf) < 2 || MsgTag(buf[0]) != tag {
		return 0, false
	}
	n := int(buf[1])
	if len(buf) != 2+n*stride {
		return 0, false
	}
	return n, true
}

// PackName 把变长名字压成定宽字节（按字节截断，右侧补零）
func PackName(name string) [NameWidth]byte {
	var out [NameWidth]byte
	copy(out[:], name)
	return out
}

// UnpackName 去掉尾部补零，还原文本
func UnpackName(b [NameWidth]byte) string {
	end := NameWidth
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

func putF64(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }
func getF64(b []byte) float64    { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
func putF32(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }
func getF32(b []byte) float32    { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }

// EncodeHello 握手应答：告知连接其分配到的 id
func EncodeHello(id uint32) []byte {
	buf := make([]byte, helloSize)
	buf[0] = byte(TagHello)
	binary.LittleEndian.PutUint32(buf[1:], id)
	return buf
}

func DecodeHello(buf []byte) (id uint32, ok bool) {
	if !verify(buf, TagHello, helloSize) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[1:]), true
}

// EncodePing 客户端侧编码（服务端仅用于测试）
func EncodePing(ts float64) []byte {
	buf := make([]byte, pingSize)
	buf[0] = byte(TagPing)
	putF64(buf[1:], ts)
	return buf
}

func DecodePing(buf []byte) (ts float64, ok bool) {
	if !verify(buf, TagPing, pingSize) {
		return 0, false
	}
	return getF64(buf[1:]), true
}

// EncodePong 原样回显客户端时间戳，由客户端本地换算往返时延
func EncodePong(ts float64) []byte {
	buf := make([]byte, pongSize)
	buf[0] = byte(TagPong)
	putF64(buf[1:], ts)
	return buf
}

func DecodePong(buf []byte) (ts float64, ok bool) {
	if !verify(buf, TagPong, pongSize) {
		return 0, false
	}
	return getF64(buf[1:]), true
}

// EncodeBalloonSpawn 新气球的完整记录
func EncodeBalloonSpawn(ts float64, id uint32, x, y float32, hue uint16) []byte {
	buf := make([]byte, balloonSpawnSize)
	buf[0] = byte(TagBalloonSpawn)
	putF64(buf[1:], ts)
	binary.LittleEndian.PutUint32(buf[9:], id)
	putF32(buf[13:], x)
	putF32(buf[17:], y)
	binary.LittleEndian.PutUint16(buf[21:], hue)
	return buf
}

func DecodeBalloonSpawn(buf []byte) (ts float64, id uint32, x, y float32, hue uint16, ok bool) {
	if !verify(buf, TagBalloonSpawn, balloonSpawnSize) {
		return 0, 0, 0, 0, 0, false
	}
	ts = getF64(buf[1:])
	id = binary.LittleEndian.Uint32(buf[9:])
	x = getF32(buf[13:])
	y = getF32(buf[17:])
	hue = binary.LittleEndian.Uint16(buf[21:])
	return ts, id, x, y, hue, true
}

// EncodePopRequest 客户端戳破请求（服务端仅用于测试）
func EncodePopRequest(ts float64, balloonID uint32) []byte {
	buf := make([]byte, popRequestSize)
	buf[0] = byte(TagBalloonPop)
	putF64(buf[1:], ts)
	binary.LittleEndian.PutUint32(buf[9:], balloonID)
	return buf
}

func DecodePopRequest(buf []byte) (ts float64, balloonID uint32, ok bool) {
	if !verify(buf, TagBalloonPop, popRequestSize) {
		return 0, 0, false
	}
	return getF64(buf[1:]), binary.LittleEndian.Uint32(buf[9:]), true
}

// EncodePopEvent 服务端广播的戳破事件：附带戳破者 id
func EncodePopEvent(ts float64, balloonID, popperID uint32) []byte {
	buf := make([]byte, popEventSize)
	buf[0] = byte(TagBalloonPop)
	putF64(buf[1:], ts)
	binary.LittleEndian.PutUint32(buf[9:], balloonID)
	binary.LittleEndian.PutUint32(buf[13:], popperID)
	return buf
}

func DecodePopEvent(buf []byte) (ts float64, balloonID, popperID uint32, ok bool) {
	if !verify(buf, TagBalloonPop, popEventSize) {
		return 0, 0, 0, false
	}
	return getF64(buf[1:]), binary.LittleEndian.Uint32(buf[9:]), binary.LittleEndian.Uint32(buf[13:]), true
}

// EncodeSetName 改名请求（服务端仅用于测试；senderID 即客户端从 Hello 得到的 id）
func EncodeSetName(senderID uint32, name string) []byte {
	buf := make([]byte, setNameSize)
	buf[0] = byte(TagSetName)
	binary.LittleEndian.PutUint32(buf[1:], senderID)
	packed := PackName(name)
	copy(buf[5:], packed[:])
	return buf
}

func DecodeSetName(buf []byte) (senderID uint32, name [NameWidth]byte, ok bool) {
	if !verify(buf, TagSetName, setNameSize) {
		return 0, name, false
	}
	senderID = binary.LittleEndian.Uint32(buf[1:])
	copy(name[:], buf[5:])
	return senderID, name, true
}

// EncodeNameResult 名字协商结果：回显请求的名字与是否通过
func EncodeNameResult(name [NameWidth]byte, valid bool) []byte {
	buf := make([]byte, nameResultSize)
	buf[0] = byte(TagNameResult)
	copy(buf[1:], name[:])
	if valid {
		buf[1+NameWidth] = 1
	}
	return buf
}

func DecodeNameResult(buf []byte) (name string, valid bool, ok bool) {
	if !verify(buf, TagNameResult, nameResultSize) {
		return "", false, false
	}
	var packed [NameWidth]byte
	copy(packed[:], buf[1:])
	return UnpackName(packed), buf[1+NameWidth] == 1, true
}

// PlayerEntry 批量消息的子记录；三种批量消息各取其中一部分字段
type PlayerEntry struct {
	ID    uint32
	Name  string
	Score uint32
}

// EncodePlayersSnapshot 全量玩家快照（id + 名字 + 分数），发给新命名者
func EncodePlayersSnapshot(entries []PlayerEntry) []byte {
	buf := make([]byte, 2+len(entries)*snapshotStride)
	buf[0] = byte(TagPlayersSnapshot)
	buf[1] = byte(len(entries))
	off := 2
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:], e.ID)
		packed := PackName(e.Name)
		copy(buf[off+4:], packed[:])
		binary.LittleEndian.PutUint32(buf[off+4+NameWidth:], e.Score)
		off += snapshotStride
	}
	return buf
}

func DecodePlayersSnapshot(buf []byte) ([]PlayerEntry, bool) {
	n, ok := verifyBatch(buf, TagPlayersSnapshot, snapshotStride)
	if !ok {
		return nil, false
	}
	entries := make([]PlayerEntry, 0, n)
	off := 2
	for i := 0; i < n; i++ {
		var packed [NameWidth]byte
		copy(packed[:], buf[off+4:])
		entries = append(entries, PlayerEntry{
			ID:    binary.LittleEndian.Uint32(buf[off:]),
			Name:  UnpackName(packed),
			Score: binary.LittleEndian.Uint32(buf[off+4+NameWidth:]),
		})
		off += snapshotStride
	}
	return entries, true
}

// EncodePlayersJoined 新命名玩家通告（id + 名字），发给其余已命名者
func EncodePlayersJoined(entries []PlayerEntry) []byte {
	buf := make([]byte, 2+len(entries)*joinedStride)
	buf[0] = byte(TagPlayersJoined)
	buf[1] = byte(len(entries))
	off := 2
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:], e.ID)
		packed := PackName(e.Name)
		copy(buf[off+4:], packed[:])
		off += joinedStride
	}
	return buf
}

func DecodePlayersJoined(buf []byte) ([]PlayerEntry, bool) {
	n, ok := verifyBatch(buf, TagPlayersJoined, joinedStride)
	if !ok {
		return nil, false
	}
	entries := make([]PlayerEntry, 0, n)
	off := 2
	for i := 0; i < n; i++ {
		var packed [NameWidth]byte
		copy(packed[:], buf[off+4:])
		entries = append(entries, PlayerEntry{
			ID:   binary.LittleEndian.Uint32(buf[off:]),
			Name: UnpackName(packed),
		})
		off += joinedStride
	}
	return entries, true
}

// EncodePlayersScores 分数更新（id + 分数）
func EncodePlayersScores(entries []PlayerEntry) []byte {
	buf := make([]byte, 2+len(entries)*scoresStride)
	buf[0] = byte(TagPlayersScores)
	buf[1] = byte(len(entries))
	off := 2
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:], e.ID)
		binary.LittleEndian.PutUint32(buf[off+4:], e.Score)
		off += scoresStride
	}
	return buf
}

func DecodePlayersScores(buf []byte) ([]PlayerEntry, bool) {
	n, ok := verifyBatch(buf, TagPlayersScores, scoresStride)
	if !ok {
		return nil, false
	}
	entries := make([]PlayerEntry, 0, n)
	off := 2
	for i := 0; i < n; i++ {
		entries = append(entries, PlayerEntry{
			ID:    binary.LittleEndian.Uint32(buf[off:]),
			Score: binary.LittleEndian.Uint32(buf[off+4:]),
		})
		off += scoresStride
	}
	return entries, true
}
