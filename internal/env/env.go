package env

import (
	"github.com/thatsimonsguy/intersection-view/internal/config"
)

var (
	Cfg *config.Config
)
