package handler

import (
	"net/http"

	"github.com/tempcast/tempcast/internal/api/models"
	"github.com/tempcast/tempcast/internal/api/response"
	"github.com/tempcast/tempcast/internal/location"
)

// ListLocations handles GET /v1/locations.
func ListLocations(w http.ResponseWriter, r *http.Request) {
	entries := location.All()
	list := models.LocationList{Items: make([]models.LocationItem, 0, len(entries))}
	for _, e := range entries {
		list.Items = append(list.Items, models.LocationItem{
			Name: e.Location.String(),
			Lat:  e.Coordinates.Lat,
			Lon:  e.Coordinates.Lon,
		})
	}
	response.JSON(w, r, http.StatusOK, list)
}
