package config

import (
	"strings"

	"github.com/danmuck/vimctl/internal/adminapi"
	"github.com/danmuck/vimctl/internal/discovery"
	"github.com/danmuck/vimctl/internal/hiddensession"
	"github.com/danmuck/vimctl/internal/protocol"
	"github.com/danmuck/vimctl/internal/protocol/session"
)

func (c Config) Session() session.Config {
	return session.Config{
		SerialWrap:   c.SerialWrap,
		CommProperty: protocol.PropComm,
	}
}

func (c Config) Hidden() hiddensession.Config {
	return hiddensession.Config{
		Binary:    c.EditorBinary,
		Prefix:    c.HiddenPrefix,
		StopGrace: c.StopGrace,
		Backoff: hiddensession.BackoffConfig{
			InitialDelay: c.SpawnBackoffInitial,
			Multiplier:   2.0,
			MaxDelay:     c.SpawnBackoffMax,
			Jitter:       true,
		},
	}
}

func (c Config) Discovery() discovery.Config {
	return discovery.Config{
		Prefix: c.HiddenPrefix,
		CwdTTL: c.CwdTTL,
	}
}

// Admin splits admin_origins on commas.
func (c Config) Admin() adminapi.Config {
	var origins []string
	for _, o := range strings.Split(c.AdminOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return adminapi.Config{
		ListenAddr:  c.AdminListenAddr,
		CORSOrigins: origins,
		ExprTimeout: c.AdminExprTimeout,
		Token:       c.AdminToken,
	}
}
