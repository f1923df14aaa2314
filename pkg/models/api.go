package models

// DatasetSummary describes a registered dataset and the years it has output for.
type DatasetSummary struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Survey    string   `json:"survey"`
	Variables []string `json:"variables"`
	Years     []int    `json:"years"`
}

type DatasetListResponse struct {
	Items      []DatasetSummary `json:"items"`
	TotalCount int              `json:"total_count"`
}

type YearsResponse struct {
	Dataset string `json:"dataset"`
	Years   []int  `json:"years"`
}

type GenerationListResponse struct {
	Items      []*Generation `json:"items"`
	TotalCount int           `json:"total_count"`
}
