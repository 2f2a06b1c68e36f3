package domain

// Release is a publication under which the provider issues series.
type Release struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	PressRelease bool   `json:"press_release"`
	Link         string `json:"link"`
}

func (Release) Columns() []string {
	return []string{"id", "name", "press_release", "link"}
}

func (r Release) Values() []any {
	return []any{r.ID, r.Name, r.PressRelease, r.Link}
}

// ReleaseDate is one scheduled or past publication date of a release.
type ReleaseDate struct {
	ReleaseID   int  `json:"release_id"`
	ReleaseDate Date `json:"release_date"`
}

func (ReleaseDate) Columns() []string {
	return []string{"release_id", "release_date"}
}

func (r ReleaseDate) Values() []any {
	return []any{r.ReleaseID, r.ReleaseDate}
}

// SeriesRelease links a series to the release that publishes it.
type SeriesRelease struct {
	SeriesID    string `json:"series_id"`
	ReleaseID   int    `json:"release_id"`
	ReleaseName string `json:"release_name"`
}

func (SeriesRelease) Columns() []string {
	return []string{"series_id", "release_id", "release_name"}
}

func (s SeriesRelease) Values() []any {
	return []any{s.SeriesID, s.ReleaseID, s.ReleaseName}
}
