package core

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("websocket connection is closed")
)

// websocketConn 封装gorilla/websocket的连接实现，写操作串行化
type websocketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // 写操作互斥锁
	closed  int32      // 原子操作标记连接状态 (0=open, 1=closed)
}

func (w *websocketConn) ReadMessage() (messageType int, p []byte, err error) {
	if atomic.LoadInt32(&w.closed) == 1 {
		return 0, nil, ErrConnectionClosed
	}

	messageType, p, err = w.conn.ReadMessage()
	if err != nil {
		atomic.StoreInt32(&w.closed, 1)
		return 0, nil, err
	}
	return messageType, p, nil
}

func (w *websocketConn) WriteMessage(messageType int, data []byte) error {
	if atomic.LoadInt32(&w.closed) == 1 {
		return ErrConnectionClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	// 获取锁期间连接可能已关闭
	if atomic.LoadInt32(&w.closed) == 1 {
		return ErrConnectionClosed
	}

	w.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if err := w.conn.WriteMessage(messageType, data); err != nil {
		atomic.StoreInt32(&w.closed, 1)
		return err
	}
	return nil
}

func (w *websocketConn) Close() error {
	if !atomic.CompareAndSwapInt32(&w.closed, 0, 1) {
		return nil
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	// 尝试发送关闭帧（不强制要求成功）
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection closed")
	w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	w.conn.WriteMessage(websocket.CloseMessage, closeMsg)

	return w.conn.Close()
}
