// Copyright (C) 2024 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package rest exposes blob detection as a small HTTP service.
package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/valyala/fastrand"

	"github.com/mlnoga/boxxer"
	"github.com/mlnoga/boxxer/img"
)

// Serve listens on the given address, e.g. ":8080".
func Serve(addr string) error {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/detect2d", postDetect2D)
			v1.POST("/detect3d", postDetect3D)
		}
	}
	return r.Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

type detectArgs struct {
	Dims              []uint32    `json:"dims"`  // [x, y(, z), nFrames]
	Data              []float32   `json:"data"`  // column-major stack
	Sigma             [][]float32 `json:"sigma"` // d rows x nScales columns
	Mode              string      `json:"mode"`  // "log" (default) or "dog"
	SigmaRatio        float32     `json:"sigmaRatio"`
	Neighborhood      int         `json:"neighborhood"`
	ScaleNeighborhood int         `json:"scaleNeighborhood"`
}

type detectReply struct {
	ID        uint32    `json:"id"`
	NMaxima   int       `json:"nMaxima"`
	Coords    []uint32  `json:"coords"` // column-major, [x, y(, z), frame] per maximum
	Values    []float32 `json:"values"`
	ElapsedMs int64     `json:"elapsedMs"`
}

func (a *detectArgs) defaults() {
	if a.Mode == "" {
		a.Mode = "log"
	}
	if a.Neighborhood == 0 {
		a.Neighborhood = 3
	}
	if a.ScaleNeighborhood == 0 {
		a.ScaleNeighborhood = 3
	}
}

func postDetect2D(c *gin.Context) { postDetect(c, 2) }
func postDetect3D(c *gin.Context) { postDetect(c, 3) }

func postDetect(c *gin.Context, d int) {
	id := fastrand.Uint32()
	var args detectArgs
	if err := c.ShouldBind(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"id": id, "error": err.Error()})
		return
	}
	args.defaults()
	if args.Mode != "log" && args.Mode != "dog" {
		c.JSON(http.StatusBadRequest, gin.H{"id": id, "error": "mode must be log or dog"})
		return
	}
	if len(args.Dims) != d+1 {
		c.JSON(http.StatusBadRequest, gin.H{"id": id, "error": "dims must be [x y (z) nFrames]"})
		return
	}

	stack, err := img.Wrap[float32](args.Dims, args.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"id": id, "error": err.Error()})
		return
	}

	start := time.Now()
	coords, vals, err := detect(stack, &args, d)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"id": id, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detectReply{
		ID:        id,
		NMaxima:   len(vals),
		Coords:    coords,
		Values:    vals,
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}

func detect(stack *img.Image[float32], args *detectArgs, d int) ([]uint32, []float32, error) {
	if d == 2 {
		b, err := boxxer.New2D[float32](stack.Dims[:2], args.Sigma)
		if err != nil {
			return nil, nil, err
		}
		if args.SigmaRatio > 0 {
			if err := b.SetDoGSigmaRatio(args.SigmaRatio); err != nil {
				return nil, nil, err
			}
		}
		if args.Mode == "dog" {
			return b.ScaleSpaceDoGMaxima(stack, args.Neighborhood, args.ScaleNeighborhood)
		}
		return b.ScaleSpaceLoGMaxima(stack, args.Neighborhood, args.ScaleNeighborhood)
	}
	b, err := boxxer.New3D[float32](stack.Dims[:3], args.Sigma)
	if err != nil {
		return nil, nil, err
	}
	if args.SigmaRatio > 0 {
		if err := b.SetDoGSigmaRatio(args.SigmaRatio); err != nil {
			return nil, nil, err
		}
	}
	if args.Mode == "dog" {
		return b.ScaleSpaceDoGMaxima(stack, args.Neighborhood, args.ScaleNeighborhood)
	}
	return b.ScaleSpaceLoGMaxima(stack, args.Neighborhood, args.ScaleNeighborhood)
}
