package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"posrelay/protocol"
)

// FrameReader 从字节流中按换行切出消息
// 超长的一行会被整体跳过并返回 ErrMalformed，读取可以继续
type FrameReader struct {
	r        *bufio.Reader
	oversize bool
}

func NewFrameReader(r io.Reader) *FrameReader {
	// 一条最大消息 + "\r\n" 必须能完整放进缓冲区
	return &FrameReader{r: bufio.NewReaderSize(r, protocol.MaxMessageSize+2)}
}

// Next 返回下一条非空消息（不含换行符，调用方持有返回的切片）
func (f *FrameReader) Next() ([]byte, error) {
	for {
		line, err := f.r.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			f.oversize = true
			continue
		}
		if err != nil {
			if err == io.EOF && len(line) > 0 && !f.oversize {
				return bytes.Clone(line), nil
			}
			return nil, err
		}
		if f.oversize {
			f.oversize = false
			return nil, fmt.Errorf("%w: frame exceeds %d bytes", protocol.ErrMalformed, protocol.MaxMessageSize)
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		return bytes.Clone(line), nil
	}
}
