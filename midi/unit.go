package midi

import (
	"os"

	"go-symusic/convert"
	"go-symusic/score"
)

// DecodeAs decodes and converts to unit T.
func DecodeAs[T score.Unit](data []byte) (*score.Score[T], error) {
	s, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return convert.Convert[T](s, 0)
}

// ReadFileAs reads path and converts to unit T.
func ReadFileAs[T score.Unit](path string) (*score.Score[T], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeAs[T](data)
}

// EncodeAs converts a score in any unit to ticks, then encodes it.
func EncodeAs[T score.Unit](s *score.Score[T]) ([]byte, error) {
	ticks, err := convert.ToTick(s)
	if err != nil {
		return nil, err
	}
	return Encode(ticks)
}
