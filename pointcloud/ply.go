package pointcloud

import (
	"image/color"
	"io"

	"github.com/chenzhekl/goply"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ReadPLY returns a point cloud from the given PLY stream. The x, y and z
// vertex properties are required; red, green and blue are picked up when all
// three are present.
func ReadPLY(f io.Reader) (PointCloud, error) {
	ply := goply.New(f)
	vertices := ply.Elements("vertex")
	pc := NewWithPrealloc(len(vertices))
	for i, v := range vertices {
		x, err := plyFloat(v["x"])
		if err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		y, err := plyFloat(v["y"])
		if err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		z, err := plyFloat(v["z"])
		if err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}

		var d Data
		if v["red"] != nil && v["green"] != nil && v["blue"] != nil {
			r, err := plyFloat(v["red"])
			if err != nil {
				return nil, errors.Wrapf(err, "vertex %d", i)
			}
			g, err := plyFloat(v["green"])
			if err != nil {
				return nil, errors.Wrapf(err, "vertex %d", i)
			}
			b, err := plyFloat(v["blue"])
			if err != nil {
				return nil, errors.Wrapf(err, "vertex %d", i)
			}
			d = NewColoredData(color.NRGBA{uint8(r), uint8(g), uint8(b), 255})
		} else {
			d = NewBasicData()
		}

		if err := pc.Set(r3.Vector{X: x, Y: y, Z: z}, d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// plyFloat widens whatever numeric type the parser handed back.
func plyFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, errors.Errorf("unsupported ply property type %T", v)
	}
}
