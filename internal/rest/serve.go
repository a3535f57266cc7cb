// Copyright (C) 2020 Markus L. Noga
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

package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/framecal/internal/fits"
	"github.com/mlnoga/framecal/internal/ops"
	_ "github.com/mlnoga/framecal/internal/ops/pre"     // register operators for JSON decoding
	_ "github.com/mlnoga/framecal/internal/ops/stretch" // register operators for JSON decoding
)

// Creates the REST API router
func NewRouter() *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/stats", postStats)
			v1.POST("/correct", postCorrect)
		}
	}
	return r
}

// Serves the REST API on the given address, e.g. ":8080"
func Serve(addr string) error {
	return NewRouter().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Serializes writes from concurrently running operators into the response
type syncWriter struct {
	mutex sync.Mutex
	w     gin.ResponseWriter
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) Flush() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.w.Flush()
}

// Starts a plain text response which receives the operator log
func startTextResponse(c *gin.Context) *syncWriter {
	c.Writer.Header().Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)
	return &syncWriter{w: c.Writer}
}

type postStatsArgs struct {
	FilePatterns []string `json:"filePatterns" binding:"required"`
}

type frameStats struct {
	ID       int     `json:"id"`
	FileName string  `json:"fileName"`
	Naxisn   []int32 `json:"naxisn"`
	Type     string  `json:"type"`
	Min      float32 `json:"min"`
	Max      float32 `json:"max"`
	Mean     float32 `json:"mean"`
	StdDev   float32 `json:"stdDev"`
	Median   float32 `json:"median"`
}

func newFrameStats(f *fits.Image) frameStats {
	return frameStats{
		ID:       f.ID,
		FileName: f.FileName,
		Naxisn:   f.Naxisn,
		Type:     f.Type.String(),
		Min:      f.Stats.Min(),
		Max:      f.Stats.Max(),
		Mean:     f.Stats.Mean(),
		StdDev:   f.Stats.StdDev(),
		Median:   f.Stats.Median(),
	}
}

func postStats(c *gin.Context) {
	var args postStatsArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := ops.NewContext(io.Discard)
	promises, err := ops.NewOpLoadMany(args.FilePatterns).MakePromises(nil, ctx)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	images, err := ops.MaterializeAll(promises, ctx.MaxThreads, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	res := make([]frameStats, len(images))
	for i, f := range images {
		res[i] = newFrameStats(f)
	}
	c.JSON(http.StatusOK, res)
}

type postCorrectArgs struct {
	FilePatterns []string        `json:"filePatterns" binding:"required"`
	Sequence     *ops.OpSequence `json:"sequence" binding:"required"`
}

// Applies the given operator sequence to each frame matching the file patterns.
// Streams the log as plain text
func postCorrect(c *gin.Context) {
	var args postCorrectArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logWriter := startTextResponse(c)
	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	ctx := ops.NewContext(logWriter)
	if err := runCorrect(ctx, args.FilePatterns, args.Sequence); err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
	logWriter.Flush()
}

// Loads the matching frames and runs them through the sequence, one frame at a time per thread
func runCorrect(ctx *ops.Context, filePatterns []string, seq *ops.OpSequence) error {
	loads, err := ops.NewOpLoadMany(filePatterns).MakePromises(nil, ctx)
	if err != nil {
		return err
	}
	outs, err := ops.NewOpForEach(seq).MakePromises(loads, ctx)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(outs, ctx.MaxThreads, true)
	return err
}
