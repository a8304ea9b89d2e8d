package viewsync

import (
	"time"

	"teamchat/api/internal/feed"
	"teamchat/api/internal/store"
)

// MessageCodec adapts channel messages to the view logic.
func MessageCodec() Codec[store.Message] {
	return Codec[store.Message]{
		ID:        func(m store.Message) string { return m.ID },
		ParentID:  func(m store.Message) *string { return m.ParentID },
		AuthorID:  func(m store.Message) string { return m.UserID },
		CreatedAt: func(m store.Message) time.Time { return m.CreatedAt },
		Decode: func(e feed.Event) (store.Message, bool) {
			var row feed.MessageRow
			if err := feed.DecodeRow(e.Row(), &row); err != nil {
				return store.Message{}, false
			}
			return row.Message(), true
		},
	}
}

// DirectMessageCodec adapts direct messages to the view logic.
func DirectMessageCodec() Codec[store.DirectMessage] {
	return Codec[store.DirectMessage]{
		ID:        func(m store.DirectMessage) string { return m.ID },
		ParentID:  func(m store.DirectMessage) *string { return m.ParentID },
		AuthorID:  func(m store.DirectMessage) string { return m.SenderID },
		CreatedAt: func(m store.DirectMessage) time.Time { return m.CreatedAt },
		Decode: func(e feed.Event) (store.DirectMessage, bool) {
			var row feed.DirectMessageRow
			if err := feed.DecodeRow(e.Row(), &row); err != nil {
				return store.DirectMessage{}, false
			}
			return row.DirectMessage(), true
		},
	}
}
