package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/actisense-sdk/internal/ring"
)

// SerialConfig 串口传输配置
type SerialConfig struct {
	// Port 操作系统设备路径，如 /dev/ttyUSB0 或 COM3
	Port string
	// Baud 波特率，默认 115200
	Baud int
	// DataBits 数据位 5..8，默认 8
	DataBits int
	// Parity 校验位 N/E/O，默认 N
	Parity string
	// StopBits 停止位 1 或 2，默认 1
	StopBits int
	// ReadBufferSize 接收环容量（字节），默认 4096
	ReadBufferSize int
	// ReadTimeout 单次读取的轮询上限，默认 50ms
	ReadTimeout time.Duration
	// MaxPendingMessages 面向报文的传输的消息环容量（串口按字节流处理，不使用）
	MaxPendingMessages int
	// SendRateBytesPerSec 发送节流（字节/秒），0 表示不限速
	SendRateBytesPerSec int
}

func (c SerialConfig) withDefaults() SerialConfig {
	if c.Baud <= 0 {
		c.Baud = 115200
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.Parity == "" {
		c.Parity = "N"
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 4096
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 50 * time.Millisecond
	}
	return c
}

func (c SerialConfig) portConfig() (*serial.Config, error) {
	if c.Port == "" {
		return nil, fmt.Errorf("serial port path is empty")
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits: %d", c.DataBits)
	}
	var parity serial.Parity
	switch c.Parity {
	case "N", "n":
		parity = serial.ParityNone
	case "E", "e":
		parity = serial.ParityEven
	case "O", "o":
		parity = serial.ParityOdd
	default:
		return nil, fmt.Errorf("invalid parity: %q", c.Parity)
	}
	var stopBits serial.StopBits
	switch c.StopBits {
	case 1:
		stopBits = serial.Stop1
	case 2:
		stopBits = serial.Stop2
	default:
		return nil, fmt.Errorf("invalid stop bits: %d", c.StopBits)
	}
	return &serial.Config{
		Name:        c.Port,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeout,
		Size:        byte(c.DataBits),
		Parity:      parity,
		StopBits:    stopBits,
	}, nil
}

// Serial 串口传输：tarm/serial 驱动，读协程将端口字节灌入接收环，
// AsyncRecv 从环中取走当前可用的一段。
type Serial struct {
	cfg     SerialConfig
	port    *serial.Port
	rx      *ring.ByteRing
	notify  chan struct{}
	stopC   chan struct{}
	open    atomic.Bool
	closed  atomic.Bool
	wmu     sync.Mutex
	limiter *rate.Limiter
	wg      sync.WaitGroup
	log     *zap.Logger
}

// NewSerial 创建串口传输（未打开）
func NewSerial(cfg SerialConfig, log *zap.Logger) *Serial {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	s := &Serial{
		cfg:    cfg,
		rx:     ring.NewByteRing(cfg.ReadBufferSize),
		notify: make(chan struct{}, 1),
		stopC:  make(chan struct{}),
		log:    log.With(zap.String("component", "serial"), zap.String("port", cfg.Port)),
	}
	if cfg.SendRateBytesPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SendRateBytesPerSec), cfg.SendRateBytesPerSec)
	}
	return s
}

// AsyncOpen 打开端口并启动读协程
func (s *Serial) AsyncOpen(_ context.Context, done OpenCompletion) {
	go func() {
		if s.closed.Load() {
			done(ErrClosed)
			return
		}
		if !s.open.CompareAndSwap(false, true) {
			done(ErrAlreadyOpen)
			return
		}
		pc, err := s.cfg.portConfig()
		if err != nil {
			s.open.Store(false)
			done(err)
			return
		}
		port, err := serial.OpenPort(pc)
		if err != nil {
			s.open.Store(false)
			done(fmt.Errorf("open %s: %w", s.cfg.Port, err))
			return
		}
		s.port = port
		s.wg.Add(1)
		go s.readLoop()
		s.log.Info("serial port opened", zap.Int("baud", s.cfg.Baud))
		done(nil)
	}()
}

// readLoop 端口读协程：读到的字节写入接收环并唤醒等待的 AsyncRecv。
// 环满导致的短写按丢弃计，由设备重发机制兜底。
func (s *Serial) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, 1024)
	for {
		select {
		case <-s.stopC:
			return
		default:
		}
		n, err := s.port.Read(buf)
		if n > 0 {
			w := s.rx.Write(buf[:n])
			if w < n {
				s.log.Warn("receive ring overflow", zap.Int("dropped", n-w))
			}
			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
		if err != nil && err != io.EOF {
			// io.EOF 是读超时的常态返回；其余错误视为端口终止
			s.log.Error("serial read failed", zap.Error(err))
			s.terminate()
			return
		}
	}
}

// AsyncRecv 等待接收环非空并取走当前可用的一段；关闭时以 ErrClosed 完成
func (s *Serial) AsyncRecv(done RecvCompletion) {
	go func() {
		scratch := make([]byte, 1024)
		for {
			if n := s.rx.Read(scratch); n > 0 {
				data := make([]byte, n)
				copy(data, scratch[:n])
				done(data, nil)
				return
			}
			select {
			case <-s.stopC:
				done(nil, ErrClosed)
				return
			case <-s.notify:
			case <-time.After(s.cfg.ReadTimeout):
			}
		}
	}()
}

// AsyncSend 提交发送；配置了限速时超出突发量直接以 ErrRateLimited 完成
func (s *Serial) AsyncSend(p []byte, done SendCompletion) {
	go func() {
		if !s.IsOpen() {
			done(0, ErrNotOpen)
			return
		}
		if s.limiter != nil {
			r := s.limiter.ReserveN(time.Now(), len(p))
			if !r.OK() {
				done(0, ErrRateLimited)
				return
			}
			if d := r.Delay(); d > 0 {
				select {
				case <-s.stopC:
					r.Cancel()
					done(0, ErrClosed)
					return
				case <-time.After(d):
				}
			}
		}
		s.wmu.Lock()
		n, err := s.port.Write(p)
		s.wmu.Unlock()
		if err != nil {
			done(n, fmt.Errorf("serial write: %w", err))
			return
		}
		done(n, nil)
	}()
}

// terminate 标记关闭并释放端口；读协程的错误路径也会走到这里，
// 因此不等待协程退出
func (s *Serial) terminate() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopC)
	s.open.Store(false)
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// Close 同步且幂等；停止读协程、关闭端口、取消在途接收
func (s *Serial) Close() error {
	err := s.terminate()
	s.wg.Wait()
	return err
}

// IsOpen 观测是否打开
func (s *Serial) IsOpen() bool { return s.open.Load() && !s.closed.Load() }

// Kind 返回 serial
func (s *Serial) Kind() Kind { return KindSerial }
