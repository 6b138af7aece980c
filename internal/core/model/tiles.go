package model

// PartitionTile is one cell of the externally supplied partition index.
type PartitionTile struct {
	TileID int64   `json:"tile_id"`
	MinX   float64 `json:"min_x"`
	MinY   float64 `json:"min_y"`
	MaxX   float64 `json:"max_x"`
	MaxY   float64 `json:"max_y"`
}

// TileLines is the join collaborator's output for one tile: raw
// tab-delimited rows, one per matched pair.
type TileLines struct {
	TileID int64    `json:"tile_id"`
	Rows   []string `json:"rows"`
}

// TileScoreLine is a single row split into its fields.
type TileScoreLine struct {
	TileID int64
	Fields []string
}

type TileAverage struct {
	TileID  int64   `json:"tile_id"`
	Average float64 `json:"average"`
}

// TileStatistic is the reported value for one partition tile.
type TileStatistic struct {
	PartitionTile
	Statistic float64 `json:"statistic"`
	Kind      string  `json:"kind"`
}
