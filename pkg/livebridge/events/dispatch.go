package events

import "fmt"

// EffectsFor is the dispatch table: a pure mapping from an envelope to the
// ordered effects it implies. The notification always comes first, then the
// invalidations in a fixed order, so side-effect order is deterministic.
//
// Progress kinds are recognized and intentionally map to nothing; kinds
// absent from the schema table also map to nothing (forward compatibility).
func EffectsFor(env Envelope) []Effect {
	switch env.Kind {
	case KindScanStarted:
		return []Effect{Notify{LevelInfo, "Scan started"}}

	case KindScanFinished:
		return []Effect{Notify{LevelSuccess, "Scan finished"}}

	case KindDownloadStarted:
		return []Effect{Notify{LevelInfo, "Download started: " + titleOf(env.Payload)}}

	case KindDownloadFinished:
		p := downloadFinished(env.Payload)
		effects := []Effect{
			Notify{LevelSuccess, "Download finished: " + p.Title},
			Invalidate{AnimeListKey()},
		}
		if p.AnimeID != nil {
			effects = append(effects, Invalidate{AnimeKey(*p.AnimeID)})
		}
		return effects

	case KindRefreshStarted:
		return []Effect{Notify{LevelInfo, "Refresh started: " + titleOf(env.Payload)}}

	case KindRefreshFinished:
		p, _ := env.Payload.(*RefreshFinishedPayload)
		if p == nil {
			p = &RefreshFinishedPayload{}
		}
		effects := []Effect{
			Notify{LevelSuccess, "Refresh finished: " + p.Title},
			Invalidate{AnimeListKey()},
		}
		if p.AnimeID != nil {
			effects = append(effects,
				Invalidate{AnimeKey(*p.AnimeID)},
				Invalidate{EpisodesKey(*p.AnimeID)},
			)
		}
		return effects

	case KindSearchMissingStarted:
		return []Effect{Notify{LevelInfo, "Missing episode search started: " + titleOf(env.Payload)}}

	case KindSearchMissingFinished:
		p, _ := env.Payload.(*SearchMissingFinishedPayload)
		if p == nil {
			p = &SearchMissingFinishedPayload{}
		}
		return []Effect{Notify{LevelSuccess,
			fmt.Sprintf("Missing episode search finished: %s (%d found)", p.Title, p.Count)}}

	case KindScanFolderStarted:
		return []Effect{Notify{LevelInfo, "Folder scan started: " + titleOf(env.Payload)}}

	case KindScanFolderFinished:
		p, _ := env.Payload.(*ScanFolderFinishedPayload)
		if p == nil {
			p = &ScanFolderFinishedPayload{}
		}
		effects := []Effect{
			Notify{LevelSuccess, fmt.Sprintf("Folder scan finished: %s (%d files found)", p.Title, p.Found)},
			Invalidate{AnimeListKey()},
		}
		if p.AnimeID != nil {
			effects = append(effects,
				Invalidate{EpisodesKey(*p.AnimeID)},
				Invalidate{AnimeKey(*p.AnimeID)},
			)
		}
		return effects

	case KindRenameStarted:
		return []Effect{Notify{LevelInfo, "Rename started: " + titleOf(env.Payload)}}

	case KindRenameFinished:
		p, _ := env.Payload.(*RenameFinishedPayload)
		if p == nil {
			p = &RenameFinishedPayload{}
		}
		effects := []Effect{Notify{LevelSuccess,
			fmt.Sprintf("Rename finished: %s (%d renamed)", p.Title, p.Count)}}
		if p.AnimeID != nil {
			effects = append(effects, Invalidate{EpisodesKey(*p.AnimeID)})
		}
		return effects

	case KindImportStarted:
		p, _ := env.Payload.(*ImportStartedPayload)
		if p == nil {
			p = &ImportStartedPayload{}
		}
		return []Effect{Notify{LevelInfo, fmt.Sprintf("Import started (%d files)", p.Count)}}

	case KindImportFinished:
		p, _ := env.Payload.(*ImportFinishedPayload)
		if p == nil {
			p = &ImportFinishedPayload{}
		}
		notify := Notify{LevelSuccess, fmt.Sprintf("Imported %d", p.Imported)}
		if p.Failed > 0 {
			notify = Notify{LevelWarning, fmt.Sprintf("Imported %d, Failed %d", p.Imported, p.Failed)}
		}
		return []Effect{notify, Invalidate{AnimeListKey()}}

	case KindLibraryScanStarted:
		return []Effect{Notify{LevelInfo, "Library scan started"}}

	case KindLibraryScanFinished:
		p, _ := env.Payload.(*LibraryScanFinishedPayload)
		if p == nil {
			p = &LibraryScanFinishedPayload{}
		}
		return []Effect{Notify{LevelSuccess,
			fmt.Sprintf("Library scan finished: %d scanned, %d matched", p.Scanned, p.Matched)}}

	case KindRssCheckStarted:
		return []Effect{Notify{LevelInfo, "RSS check started"}}

	case KindRssCheckFinished:
		p, _ := env.Payload.(*RssCheckFinishedPayload)
		if p == nil {
			p = &RssCheckFinishedPayload{}
		}
		return []Effect{Notify{LevelSuccess,
			fmt.Sprintf("RSS check finished: %d new items", p.NewItems)}}

	case KindError:
		return []Effect{Notify{LevelError, messageOf(env.Payload)}}

	case KindInfo:
		return []Effect{Notify{LevelInfo, messageOf(env.Payload)}}

	case KindScanProgress, KindLibraryScanProgress, KindRssCheckProgress, KindDownloadProgress:
		// Intentionally silent. Progress rendering happens via raw observers.
		return nil
	}

	return nil
}

func titleOf(p Payload) string {
	if tp, ok := p.(*TitlePayload); ok {
		return tp.Title
	}
	return ""
}

func messageOf(p Payload) string {
	if mp, ok := p.(*MessagePayload); ok {
		return mp.Message
	}
	return ""
}

func downloadFinished(p Payload) *DownloadFinishedPayload {
	if dp, ok := p.(*DownloadFinishedPayload); ok {
		return dp
	}
	return &DownloadFinishedPayload{}
}
