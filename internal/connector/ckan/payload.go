package ckan

import "github.com/leia-project/viewer-sub001/internal/connector"

// response is the CKAN action API envelope.
type response[T any] struct {
	Success bool `json:"success"`
	Result  T    `json:"result"`
}

func accept[T any](r *response[T]) error {
	if !r.Success {
		return connector.ErrUnsuccessful
	}
	return nil
}

type groupRef struct {
	Name string `json:"name"`
}

type group struct {
	Name   string     `json:"name"`
	Title  string     `json:"title"`
	Groups []groupRef `json:"groups"`
}

type searchResult struct {
	Count   int   `json:"count"`
	Results []pkg `json:"results"`
}

type extra struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type tag struct {
	Name string `json:"name"`
}

type pkg struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Notes     string     `json:"notes"`
	License   string     `json:"license_title"`
	Groups    []groupRef `json:"groups"`
	Extras    []extra    `json:"extras"`
	Tags      []tag      `json:"tags"`
	Resources []resource `json:"resources"`
}

type resource struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Format         string `json:"format"`
	Description    string `json:"description"`
	URL            string `json:"url"`
	ImageURL       string `json:"imageUrl"`
	LegendURL      string `json:"legendUrl"`
	MetadataURL    string `json:"metadataUrl"`
	Settings       string `json:"settings"`
	CameraPosition string `json:"cameraPosition"`
	EnableClipping bool   `json:"enableClipping"`
}
