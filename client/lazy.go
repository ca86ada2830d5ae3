package client

import (
	"context"
	"sync"
)

// Lazy owns the one Conn a client process uses. The first Get dials and starts
// the read loop; later calls return the same Conn. Pass the *Lazy to whatever
// needs the connection instead of keeping a global.
type Lazy struct {
	url  string
	opts []Option

	mu     sync.Mutex
	conn   *Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLazy(url string, opts ...Option) *Lazy {
	return &Lazy{url: url, opts: opts}
}

func (l *Lazy) Get(ctx context.Context) (*Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn, nil
	}

	conn, err := Dial(ctx, l.url, l.opts...)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.Run(runCtx)
	}()

	l.conn, l.cancel, l.done = conn, cancel, done
	return conn, nil
}

// Close stops the read loop and closes the connection if one was made.
func (l *Lazy) Close() error {
	l.mu.Lock()
	conn, cancel, done := l.conn, l.cancel, l.done
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	cancel()
	<-done
	return err
}
