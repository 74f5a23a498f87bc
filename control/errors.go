package control

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrInvalidArgument 参数缺失或取值非法
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound 讲师不存在
	ErrNotFound = errors.New("not found")
)

// 业务拒绝的原因，返回给前端直接展示
const (
	ReasonAlreadyExists = "already exists"
	ReasonAlreadyVoted  = "already voted"
	ReasonNotFound      = "lecturer not found"
)

var logger = log.WithField("component", "lecturer-plugin")
