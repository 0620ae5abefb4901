package storage

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Кодек сжатия значений для key-value бэкендов. EncodeAll и DecodeAll
// можно вызывать из нескольких горутин одновременно.
var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() error {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return codecErr
}

func compress(data []byte) ([]byte, error) {
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("zstd недоступен: %w", err)
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func decompress(data []byte) ([]byte, error) {
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("zstd недоступен: %w", err)
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки: %w", err)
	}
	return out, nil
}
