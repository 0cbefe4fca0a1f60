package record

import "github.com/google/uuid"

// SampleCollection returns deterministic placeholder data. It is served when
// a resource exists but its payload does not decode, so the dashboard can
// render something instead of retrying a file that will never parse.
func SampleCollection() *Collection {
	c := &Collection{
		Errors: []Record{
			{
				ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte("sample-1")).String(),
				UserID:       "user1",
				Date:         "2025/04/19",
				Time:         "13:30:10",
				ASIN:         "B0CMZ8D9VD",
				OldContainer: "tspt0000369",
				NewContainer: "P-3-C214A542",
				Violation:    "Item under 70cm in barrel",
				Quantity:     4,
				Occurrences: []Occurrence{
					{Date: "2025/04/19", Time: "13:29:43"},
					{Date: "2025/04/19", Time: "13:30:10"},
				},
				FeedbackStatus: StatusPending,
			},
			{
				ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte("sample-2")).String(),
				UserID:       "user2",
				Date:         "2025/04/19",
				Time:         "14:25:39",
				ASIN:         "B0CMZ8D9VD",
				OldContainer: "tspt0000533",
				NewContainer: "P-3-C286A472",
				Violation:    "Item under 70cm in barrel",
				Quantity:     2,
				Occurrences: []Occurrence{
					{Date: "2025/04/19", Time: "14:24:29"},
					{Date: "2025/04/19", Time: "14:25:39"},
				},
				FeedbackStatus:   StatusDone,
				FeedbackUser:     "admin",
				FeedbackDate:     "2025/04/30",
				FeedbackMotive:   "Training gap",
				FeedbackComment:  "New hire in the area",
				FeedbackNotified: true,
				TimesNotified:    1,
			},
		},
	}
	c.Normalize()
	return c
}
