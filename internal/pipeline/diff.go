package pipeline

import (
	"github.com/supportops/zendesk-sync/internal/model"
	"github.com/supportops/zendesk-sync/internal/notify"
)

func computeUpdates(pre *model.Ticket, post *model.Ticket, preComments, postComments []model.Comment) *notify.Updates {
	return &notify.Updates{
		NewComments:   newComments(preComments, postComments),
		UpdatedFields: updatedFields(pre, post),
	}
}

// newComments returns the post-sync comments absent from the pre snapshot, in
// post order. Only additions are tracked: when the post count is not strictly
// greater, the result is empty, since this service does not follow comment
// edits or deletions.
func newComments(pre, post []model.Comment) []model.Comment {
	if len(post) <= len(pre) {
		return nil
	}
	seen := make(map[int64]struct{}, len(pre))
	for _, c := range pre {
		seen[c.ZendeskID] = struct{}{}
	}
	var added []model.Comment
	for _, c := range post {
		if _, ok := seen[c.ZendeskID]; !ok {
			added = append(added, c)
		}
	}
	return added
}

// updatedFields compares the two ticket snapshots field by field. The
// created_at/updated_at timestamps are excluded: they are noisy and often
// mismatched across representations, so diffing them is not useful. A missing
// snapshot (ticket just created) yields no changes.
func updatedFields(pre, post *model.Ticket) map[string]notify.FieldChange {
	changes := map[string]notify.FieldChange{}
	if pre == nil || post == nil {
		return changes
	}

	record := func(field string, oldVal, newVal interface{}) {
		if oldVal != newVal {
			changes[field] = notify.FieldChange{Old: oldVal, New: newVal}
		}
	}

	record("requester_id", pre.RequesterID, post.RequesterID)
	record("subject", pre.Subject, post.Subject)
	record("description", pre.Description, post.Description)
	record("url", pre.URL, post.URL)
	record("status", string(pre.Status), string(post.Status))
	record("custom_fields", pre.CustomFields, post.CustomFields)
	record("tags", pre.Tags, post.Tags)
	return changes
}
