package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/leapstack-labs/formflow/internal/archive"
	"github.com/leapstack-labs/formflow/internal/cli/output"
	"github.com/leapstack-labs/formflow/internal/coordinator"
)

// Validate checks if the configuration is valid. Files and folders are
// checked separately by ValidateProject so that init and help work in an
// empty directory.
func (c *Config) Validate() error {
	var errs []error

	if _, err := coordinator.ParseProfile(c.Profile); err != nil {
		errs = append(errs, err)
	}
	if _, err := output.ParseMode(c.OutputFormat); err != nil {
		errs = append(errs, err)
	}

	l := c.Ledger
	if l.LiquidLimit <= 0 || l.WashLimit <= 0 || l.SubsampleCapacity <= 0 {
		errs = append(errs, fmt.Errorf("ledger limits must be positive"))
	}
	if l.LiquidDeadspace < 0 || l.LiquidDeadspace >= 1 || l.WashDeadspace < 0 || l.WashDeadspace >= 1 {
		errs = append(errs, fmt.Errorf("ledger deadspace must be a fraction in [0, 1)"))
	}
	if l.SwitchThrough && l.SubsampleChannels < 1 {
		errs = append(errs, fmt.Errorf("ledger.subsample_channels must be at least 1 with switch-through"))
	}

	if c.Composition.TotalVolume <= 0 {
		errs = append(errs, fmt.Errorf("composition.total_volume must be positive"))
	}

	if c.Replica.Enabled {
		if c.Replica.Source < 0 {
			errs = append(errs, fmt.Errorf("replica.source must not be negative"))
		}
		if len(c.Replica.Targets) == 0 {
			errs = append(errs, fmt.Errorf("replica.targets is required when replica is enabled"))
		}
		if slices.Contains(c.Replica.Targets, c.Replica.Source) {
			errs = append(errs, fmt.Errorf("replica.targets must not contain the source %d", c.Replica.Source))
		}
	}

	if c.Archive.Enabled {
		switch archive.Driver(c.Archive.Driver) {
		case archive.DriverFilesystem, archive.DriverMemory:
		case archive.DriverS3:
			if c.Archive.S3.Bucket == "" {
				errs = append(errs, fmt.Errorf("archive.s3.bucket is required for the s3 driver"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown archive driver %q", c.Archive.Driver))
		}
	}

	return errors.Join(errs...)
}

// ValidateProject checks that the project template exists.
func (c *Config) ValidateProject() error {
	if _, err := os.Stat(c.TemplatePath); os.IsNotExist(err) {
		return fmt.Errorf("batch template does not exist: %s\nHint: Run 'formflow init' or use --project-dir to point at a project", c.TemplatePath)
	}
	return nil
}
