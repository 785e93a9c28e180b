package metacache

import "context"

// Version filter constants for the latest-version resolver.
const (
	statusPublished    = "Published"
	availabilityPublic = "Public"
)

// latestPublishedVersion determines the most recent published, publicly
// available version of a model. Returns 0 when the model has no version
// passing the filter; callers leave their update flag as previously
// computed in that case. Equal creation timestamps keep the first entry
// seen, in payload order.
func (r *registryClient) latestPublishedVersion(ctx context.Context, modelID int64) (int64, error) {
	payload, err := r.modelByID(ctx, modelID)
	if err != nil {
		return 0, err
	}

	var (
		latestID int64
		found    bool
	)
	var latest ModelVersionEntry
	for _, v := range payload.Versions {
		if v.Status != statusPublished || v.Availability != availabilityPublic {
			continue
		}
		if !found || v.CreatedAt.After(latest.CreatedAt) {
			latest = v
			latestID = v.ID
			found = true
		}
	}

	return latestID, nil
}
