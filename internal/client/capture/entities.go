package capture

import (
	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/friends"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/tags"
	"github.com/dmitrijs2005/offsync/internal/dbx"
)

type (
	Friends     = Repository[models.Friend, *models.Friend]
	Tags        = Repository[models.Tag, *models.Tag]
	Attachments = Repository[models.Attachment, *models.Attachment]
)

func NewFriends(rec *Recorder) *Friends {
	return NewRepository[models.Friend](rec, models.TableFriends, func(db dbx.DBTX) Store[models.Friend] {
		return friends.NewSQLiteRepository(db)
	})
}

func NewTags(rec *Recorder) *Tags {
	return NewRepository[models.Tag](rec, models.TableRecordTags, func(db dbx.DBTX) Store[models.Tag] {
		return tags.NewSQLiteRepository(db)
	})
}

func NewAttachments(rec *Recorder) *Attachments {
	return NewRepository[models.Attachment](rec, models.TableAttachments, func(db dbx.DBTX) Store[models.Attachment] {
		return attachments.NewSQLiteRepository(db)
	})
}
