package config

import (
	"fmt"
	"time"

	"github.com/DeBrosOfficial/collab/pkg/config/validate"
)

// ValidationError represents a single validation error with context.
type ValidationError = validate.ValidationError

// Validate performs comprehensive validation of the entire config.
// It aggregates all errors and returns them, allowing the caller to print all issues at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNode()...)
	errs = append(errs, c.validateCollaboration()...)
	errs = append(errs, c.validateDiscovery()...)
	errs = append(errs, c.validateReconnect()...)
	errs = append(errs, c.validateBuild()...)
	errs = append(errs, validate.Logging(c.Logging.Level, c.Logging.Format, c.Logging.OutputFile)...)
	errs = append(errs, c.validateCrossFields()...)

	return errs
}

func (c *Config) validateNode() []error {
	var errs []error

	if c.Node.Name == "" {
		errs = append(errs, ValidationError{
			Path:    "node.name",
			Message: "must not be empty",
			Hint:    "peers see this name next to the fields you lock",
		})
	}

	if c.Node.DataDir == "" {
		errs = append(errs, ValidationError{
			Path:    "node.data_dir",
			Message: "must not be empty",
		})
	} else if dir, err := ExpandPath(c.Node.DataDir); err != nil {
		errs = append(errs, ValidationError{Path: "node.data_dir", Message: err.Error()})
	} else if err := validate.DataDir(dir); err != nil {
		errs = append(errs, ValidationError{Path: "node.data_dir", Message: err.Error()})
	}

	return errs
}

func (c *Config) validateCollaboration() []error {
	var errs []error
	cc := c.Collaboration

	// 0 is allowed and means "pick a free port"
	if cc.SyncPort != 0 {
		if err := validate.Port(cc.SyncPort); err != nil {
			errs = append(errs, ValidationError{
				Path:    "collaboration.sync_port",
				Message: err.Error(),
				Hint:    "use 0 to let the OS pick a free port",
			})
		}
	}

	if cc.AdvertiseIP != "" {
		if err := validate.IPv4(cc.AdvertiseIP); err != nil {
			errs = append(errs, ValidationError{Path: "collaboration.advertise_ip", Message: err.Error()})
		}
	}

	if cc.MaxPeers <= 0 {
		errs = append(errs, ValidationError{
			Path:    "collaboration.max_peers",
			Message: fmt.Sprintf("must be > 0; got %d", cc.MaxPeers),
		})
	}

	if cc.SendQueueSize <= 0 {
		errs = append(errs, ValidationError{
			Path:    "collaboration.send_queue_size",
			Message: fmt.Sprintf("must be > 0; got %d", cc.SendQueueSize),
		})
	}

	if cc.MaxMessageSize < 64<<10 {
		errs = append(errs, ValidationError{
			Path:    "collaboration.max_message_size",
			Message: fmt.Sprintf("must be at least 65536 bytes; got %d", cc.MaxMessageSize),
			Hint:    "full-state hydration of a site is sent as one frame",
		})
	}

	errs = append(errs, positiveDuration("collaboration.write_timeout", cc.WriteTimeout)...)
	errs = append(errs, positiveDuration("collaboration.ping_interval", cc.PingInterval)...)

	return errs
}

func (c *Config) validateDiscovery() []error {
	var errs []error
	dc := c.Discovery

	if !dc.Enabled {
		return nil
	}

	if err := validate.Port(dc.Port); err != nil {
		errs = append(errs, ValidationError{Path: "discovery.port", Message: err.Error()})
	}

	if err := validate.IPv4(dc.BroadcastAddress); err != nil {
		errs = append(errs, ValidationError{
			Path:    "discovery.broadcast_address",
			Message: err.Error(),
			Hint:    "255.255.255.255 or the subnet broadcast address, e.g. 192.168.1.255",
		})
	}

	if dc.Tag == "" {
		errs = append(errs, ValidationError{Path: "discovery.tag", Message: "must not be empty"})
	}

	errs = append(errs, positiveDuration("discovery.announce_interval", dc.AnnounceInterval)...)
	errs = append(errs, positiveDuration("discovery.window", dc.Window)...)

	if dc.ServerTTL < 0 {
		errs = append(errs, ValidationError{
			Path:    "discovery.server_ttl",
			Message: fmt.Sprintf("must be >= 0; got %s", dc.ServerTTL),
			Hint:    "0 keeps discovered hosts until restart",
		})
	}

	return errs
}

func (c *Config) validateReconnect() []error {
	var errs []error
	rc := c.Reconnect

	if rc.Attempts < 0 {
		errs = append(errs, ValidationError{
			Path:    "reconnect.attempts",
			Message: fmt.Sprintf("must be >= 0; got %d", rc.Attempts),
		})
	}
	errs = append(errs, positiveDuration("reconnect.timeout", rc.Timeout)...)

	if rc.InitialDelay < 0 {
		errs = append(errs, ValidationError{
			Path:    "reconnect.initial_delay",
			Message: fmt.Sprintf("must be >= 0; got %s", rc.InitialDelay),
		})
	}
	if rc.MaxDelay < rc.InitialDelay {
		errs = append(errs, ValidationError{
			Path:    "reconnect.max_delay",
			Message: fmt.Sprintf("must be >= initial_delay (%s); got %s", rc.InitialDelay, rc.MaxDelay),
		})
	}

	return errs
}

func (c *Config) validateBuild() []error {
	var errs []error

	seen := make(map[string]bool)
	for i, stage := range c.Build.Stages {
		path := fmt.Sprintf("build.stages[%d]", i)
		if stage.Name == "" {
			errs = append(errs, ValidationError{Path: path + ".name", Message: "must not be empty"})
		} else if seen[stage.Name] {
			errs = append(errs, ValidationError{Path: path + ".name", Message: fmt.Sprintf("duplicate stage %q", stage.Name)})
		}
		seen[stage.Name] = true

		if len(stage.Command) == 0 || stage.Command[0] == "" {
			errs = append(errs, ValidationError{
				Path:    path + ".command",
				Message: "must not be empty",
				Hint:    `e.g. ["npx", "gatsby", "build"]`,
			})
		}
	}

	return errs
}

func (c *Config) validateCrossFields() []error {
	var errs []error
	dc := c.Discovery

	if dc.Enabled && dc.ServerTTL > 0 && dc.ServerTTL <= dc.AnnounceInterval {
		errs = append(errs, ValidationError{
			Path:    "discovery.server_ttl",
			Message: fmt.Sprintf("must exceed announce_interval (%s); got %s", dc.AnnounceInterval, dc.ServerTTL),
			Hint:    "a live host would expire between two announcements",
		})
	}

	return errs
}

func positiveDuration(path string, d time.Duration) []error {
	if d <= 0 {
		return []error{ValidationError{
			Path:    path,
			Message: fmt.Sprintf("must be > 0; got %s", d),
		}}
	}
	return nil
}
