package ztd

import (
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"log"
)

func (z *ZTD) WithGoLogger(parentLogger *log.Logger) {
	z.WithLogWrapLogger(logwrap.New(golog.Wrap(parentLogger)))
}

func (z *ZTD) WithLogWrapLogger(lw logwrap.Logger) {
	z.logger = lw
}
