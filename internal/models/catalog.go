package models

import "strings"

// CatalogAlbum is an album on the external music catalog.
type CatalogAlbum struct {
	BrowseID        string   `json:"browseId"`
	AudioPlaylistID string   `json:"audioPlaylistId,omitempty"`
	Title           string   `json:"title"`
	Artists         []string `json:"artists"`
	Year            string   `json:"year,omitempty"`
}

// URL returns the address the fetch service downloads the album from.
func (a CatalogAlbum) URL() string {
	if a.AudioPlaylistID != "" {
		return "https://music.youtube.com/playlist?list=" + a.AudioPlaylistID
	}
	if a.BrowseID != "" {
		return "https://music.youtube.com/browse/" + a.BrowseID
	}
	return ""
}

// Artist joins the credited artists.
func (a CatalogAlbum) Artist() string {
	return strings.Join(a.Artists, ", ")
}

// CatalogSong is a song search result on the external catalog.
type CatalogSong struct {
	VideoID       string   `json:"videoId"`
	Title         string   `json:"title"`
	Artists       []string `json:"artists"`
	Album         string   `json:"album,omitempty"`
	AlbumBrowseID string   `json:"albumBrowseId,omitempty"`
}

// CatalogArtist is an artist search result on the external catalog.
type CatalogArtist struct {
	BrowseID string `json:"browseId"`
	Name     string `json:"name"`
}

// DownloadState is one poll result from the fetch service.
type DownloadState struct {
	Status   DownloadStatus `json:"status"`
	Progress float64        `json:"progress"`
	Error    string         `json:"error,omitempty"`
}
