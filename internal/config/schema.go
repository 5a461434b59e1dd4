package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains every field of Config as it encodes to JSON.
const schemaSource = `
#Colour: "white" | "light_grey" | "grey" | "black" | "red" | "green" | "blue" | "yellow" | "cyan" | "magenta" | "orange"
#Ratio:  =~"^[0-9]+/[1-9][0-9]*$"

#Config: {
	output: {
		type:             "null" | "raw" | "x11_auto" | "x11" | "x11_xv" | "sdi" | "dual_sdi_x11_auto" | "dual_sdi_x11" | "dual_sdi_x11_xv"
		device:           string
		secondary_device: string
		buffer_size:      int & >=0 & <=64
		window_id:        int & >=0
	}
	display: {
		scale:                    number & >0 & <=4
		scale_filter:             bool
		source_aspect_ratio:      "" | #Ratio
		pixel_aspect_ratio:       #Ratio
		monitor_aspect_ratio:     #Ratio
		dimension_mode:           "auto" | "static" | "dynamic"
		video_split:              "none" | "quad" | "nona"
		software_scale_threshold: int & >=0
	}
	osd: {
		sdi_enable:      bool
		x11_enable:      bool
		screen:          "source_info" | "play_state" | "menu" | "empty"
		play_state_hold: int & >=0
		mark_colours:    null | {[=~"^([1-9]|[12][0-9]|3[0-2])$"]: #Colour}
	}
	audio: {
		device:             string
		num_level_monitors: int & >=0 & <=16
		lineup_level:       number & <=0
		enable_switch:      bool
		snap_to_video:      bool
	}
	source: {
		read_ahead_frames: int & >=0
	}
	logging: {
		level:         "trace" | "debug" | "info" | "warn" | "error" | "off"
		format:        "json" | "text"
		enable_colors: bool
	}
	store: {
		enabled:    bool
		type:       "sqlite" | "postgres"
		path:       string
		dsn:        string
		workers:    int & >=1
		queue_size: int & >=1
	}
	monitor: {
		enabled:           bool
		addr:              string
		frame_events_rate: int & >=0
	}
	reload: {
		enabled:  bool
		debounce: int & >=0
	}
}
`

var (
	schemaOnce  sync.Once
	schemaCtx   *cue.Context
	schemaValue cue.Value
	schemaErr   error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		compiled := schemaCtx.CompileString(schemaSource)
		if compiled.Err() != nil {
			schemaErr = fmt.Errorf("error compiling config schema: %v", compiled.Err())
			return
		}
		schemaValue = compiled.LookupPath(cue.ParsePath("#Config"))
		if !schemaValue.Exists() {
			schemaErr = fmt.Errorf("#Config definition not found in config schema")
		}
	})
	return schemaCtx, schemaValue, schemaErr
}

// Validate checks cfg against the embedded CUE schema and the rules the
// schema cannot express.
func Validate(cfg *Config) error {
	ctx, schema, err := loadSchema()
	if err != nil {
		return err
	}

	encoded := ctx.Encode(cfg)
	if encoded.Err() != nil {
		return fmt.Errorf("error encoding config: %v", encoded.Err())
	}
	if err := schema.Unify(encoded).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Store.Enabled && cfg.Store.Type == "postgres" && cfg.Store.DSN == "" {
		return fmt.Errorf("invalid configuration: store.dsn is required for postgres")
	}
	return nil
}
