package amocrm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// Taxonomy identifies where new leads land.
type Taxonomy struct {
	PipelineID   int64  `json:"pipeline_id"`
	PipelineName string `json:"pipeline_name,omitempty"`
	StatusID     int64  `json:"status_id"`
	StatusName   string `json:"status_name,omitempty"`
}

type namedEntity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type pipelinesResponse struct {
	Embedded struct {
		Pipelines []namedEntity `json:"pipelines"`
	} `json:"_embedded"`
}

type statusesResponse struct {
	Embedded struct {
		Statuses []namedEntity `json:"statuses"`
	} `json:"_embedded"`
}

// fold case-folds s. A Caser is stateful, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// sameName compares two entity names ignoring case and surrounding space.
func sameName(a, b string) bool {
	return fold(strings.TrimSpace(a)) == fold(strings.TrimSpace(b))
}

func (c *httpClient) ResolveTaxonomy(ctx context.Context) (Taxonomy, error) {
	if !c.IsConfigured() {
		return Taxonomy{}, eris.Wrap(ErrNotConfigured, "amocrm: resolve taxonomy")
	}
	if c.cfg.PipelineID > 0 && c.cfg.StatusID > 0 {
		return Taxonomy{PipelineID: c.cfg.PipelineID, StatusID: c.cfg.StatusID}, nil
	}
	return c.taxonomy.Get(ctx, c.baseURL())
}

// fetchTaxonomy looks the pipeline up by configured id or name, then the
// status inside it the same way.
func (c *httpClient) fetchTaxonomy(ctx context.Context, baseURL string) (Taxonomy, error) {
	var pipelines pipelinesResponse
	if _, err := c.getJSON(ctx, baseURL, "/api/v4/leads/pipelines", &pipelines); err != nil {
		return Taxonomy{}, eris.Wrap(err, "amocrm: fetch pipelines")
	}

	pipeline, ok := findEntity(pipelines.Embedded.Pipelines, c.cfg.PipelineID, c.cfg.PipelineName)
	if !ok {
		return Taxonomy{}, eris.Wrapf(ErrPipelineNotFound, "amocrm: pipeline %s", describe(c.cfg.PipelineID, c.cfg.PipelineName))
	}

	var statuses statusesResponse
	path := fmt.Sprintf("/api/v4/leads/pipelines/%d/statuses", pipeline.ID)
	if _, err := c.getJSON(ctx, baseURL, path, &statuses); err != nil {
		return Taxonomy{}, eris.Wrap(err, "amocrm: fetch statuses")
	}

	status, ok := findEntity(statuses.Embedded.Statuses, c.cfg.StatusID, c.cfg.StatusName)
	if !ok {
		return Taxonomy{}, eris.Wrapf(ErrStatusNotFound, "amocrm: status %s in pipeline %q",
			describe(c.cfg.StatusID, c.cfg.StatusName), pipeline.Name)
	}

	return Taxonomy{
		PipelineID:   pipeline.ID,
		PipelineName: pipeline.Name,
		StatusID:     status.ID,
		StatusName:   status.Name,
	}, nil
}

// findEntity matches by id when one is configured, otherwise by name.
func findEntity(items []namedEntity, id int64, name string) (namedEntity, bool) {
	for _, item := range items {
		if id > 0 {
			if item.ID == id {
				return item, true
			}
			continue
		}
		if sameName(item.Name, name) {
			return item, true
		}
	}
	return namedEntity{}, false
}

func describe(id int64, name string) string {
	if id > 0 {
		return "id " + strconv.FormatInt(id, 10)
	}
	return strconv.Quote(name)
}
