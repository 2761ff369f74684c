package server

import (
	"context"
	"time"

	"github.com/alnah/go-speechscreen/internal/pipeline"
)

func (j *Jobs) SetNow(fn func() time.Time) { j.now = fn }

func (j *Jobs) Add(id, language, fileName string, cancel context.CancelFunc) JobView {
	return j.add(id, language, fileName, cancel)
}

func (j *Jobs) Finish(id string, res *pipeline.Result, err error) { j.finish(id, res, err) }
