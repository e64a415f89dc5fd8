// Package selection decides which containers are backed up in a run.
package selection

import (
	"strings"

	"github.com/kebairia/dockdump/internal/config"
	"github.com/kebairia/dockdump/internal/docker"
	"github.com/kebairia/dockdump/internal/logger"
)

// databaseImages are matched as substrings of the image reference.
var databaseImages = []string{"mysql", "mariadb", "postgres"}

// IsDatabaseImage reports whether image looks like a supported database image.
func IsDatabaseImage(image string) bool {
	image = strings.ToLower(image)
	for _, name := range databaseImages {
		if strings.Contains(image, name) {
			return true
		}
	}
	return false
}

// Result is the work list for a run plus the number of selection errors.
type Result struct {
	Work   []docker.Container
	Errors int
}

// Select filters inventory down to running database containers that are
// required by sel. The work list follows the order of sel.Required.
// Required containers that are missing, stopped or not running a database
// image are logged and counted as errors. Database containers that are
// neither required nor skipped only warn.
func Select(inventory []docker.Container, sel config.ContainersConfig, log logger.Logger) Result {
	required := config.NewNameSet(sel.Required)
	skip := config.NewNameSet(sel.Skip)

	present := make(map[string]docker.Container, len(inventory))
	matched := make(map[string]docker.Container)
	for _, c := range inventory {
		present[c.Name] = c
		if !IsDatabaseImage(c.Image) {
			continue
		}
		if skip.Has(c.Name) {
			log.Debug("container skipped", "container", c.Name, "image", c.Image)
			continue
		}
		if !required.Has(c.Name) {
			log.Warn("database container not configured for backup",
				"container", c.Name,
				"image", c.Image,
			)
			continue
		}
		matched[c.Name] = c
	}

	var res Result
	for _, name := range sel.Required {
		c, ok := matched[name]
		if !ok {
			if other, found := present[name]; found && !IsDatabaseImage(other.Image) {
				log.Error("required container image not supported",
					"container", name,
					"image", other.Image,
				)
				res.Errors++
				continue
			}
			log.Error("required container not found", "container", name)
			res.Errors++
			continue
		}
		if !c.Running() {
			log.Error("required container not running",
				"container", name,
				"status", string(c.Status),
			)
			res.Errors++
			continue
		}
		res.Work = append(res.Work, c)
	}
	return res
}
