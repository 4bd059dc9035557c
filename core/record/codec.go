package record

import (
	"github.com/pkg/errors"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/cryptox"
)

// Codec maps records to and from their at-rest form.
//
// contact_email, contact_phone, hold_reason and follow_up_comments are encrypted;
// contact_email is also hashed for lookups. Every other field is stored as is.
type Codec struct {
	cipher *cryptox.Cipher
	logger core.Logger
}

func NewCodec(cipher *cryptox.Cipher, logger core.Logger) *Codec {
	return &Codec{cipher: cipher, logger: logger}
}

// HashEmail returns the lookup hash of an email address.
func (c *Codec) HashEmail(email string) string {
	return c.cipher.HashIdentifier(email)
}

// seal fails with a shutdown error: without encryption no record can be written.
func (c *Codec) seal(field, value string) (string, error) {
	env, err := c.cipher.Encrypt(value)
	if err != nil {
		return "", core.NewShutdownError(errors.Wrapf(err, "encrypting %s", field).Error())
	}
	return env, nil
}

func (c *Codec) open(id, field, value string) string {
	plaintext, err := c.cipher.Open(value)
	if err != nil {
		// never log the value itself
		c.logger.Warn("decryption fallback", map[string]interface{}{"record_id": id, "field": field, "reason": err.Error()})
		return value
	}
	return plaintext
}

func (c *Codec) ToStorage(r Record) (StoredRecord, error) {
	s := StoredRecord{
		ID:                  r.ID,
		StudentName:         r.StudentName,
		OwnerName:           r.OwnerName,
		ContactEmailHash:    c.HashEmail(r.ContactEmail),
		Category:            r.Category,
		Status:              r.Status,
		NextReminderDate:    r.NextReminderDate,
		RemindersSuppressed: r.RemindersSuppressed,
		CreatedBy:           r.CreatedBy,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	var err error
	if s.ContactEmail, err = c.seal("contact_email", r.ContactEmail); err != nil {
		return StoredRecord{}, err
	}
	if s.ContactPhone, err = c.seal("contact_phone", r.ContactPhone); err != nil {
		return StoredRecord{}, err
	}
	if s.HoldReason, err = c.seal("hold_reason", r.HoldReason); err != nil {
		return StoredRecord{}, err
	}
	if s.FollowUpComments, err = c.seal("follow_up_comments", r.FollowUpComments); err != nil {
		return StoredRecord{}, err
	}
	return s, nil
}

// FromStorage decrypts the sensitive fields. Values that cannot be decrypted are passed through.
func (c *Codec) FromStorage(s StoredRecord) Record {
	return Record{
		ID:                  s.ID,
		StudentName:         s.StudentName,
		OwnerName:           s.OwnerName,
		ContactEmail:        c.open(s.ID, "contact_email", s.ContactEmail),
		ContactPhone:        c.open(s.ID, "contact_phone", s.ContactPhone),
		Category:            s.Category,
		HoldReason:          c.open(s.ID, "hold_reason", s.HoldReason),
		FollowUpComments:    c.open(s.ID, "follow_up_comments", s.FollowUpComments),
		Status:              s.Status,
		NextReminderDate:    s.NextReminderDate,
		RemindersSuppressed: s.RemindersSuppressed,
		CreatedBy:           s.CreatedBy,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func (c *Codec) FromStorageSlice(slice []StoredRecord) []Record {
	records := make([]Record, 0, len(slice))
	for _, s := range slice {
		records = append(records, c.FromStorage(s))
	}
	return records
}

// ApplyUpdate merges the supplied fields into s, encrypting only the sensitive fields that changed.
func (c *Codec) ApplyUpdate(s *StoredRecord, uu UpdateRecord) error {
	var err error
	if uu.StudentName != nil {
		s.StudentName = *uu.StudentName
	}
	if uu.OwnerName != nil {
		s.OwnerName = *uu.OwnerName
	}
	if uu.ContactEmail != nil {
		if s.ContactEmail, err = c.seal("contact_email", *uu.ContactEmail); err != nil {
			return err
		}
		s.ContactEmailHash = c.HashEmail(*uu.ContactEmail)
	}
	if uu.ContactPhone != nil {
		if s.ContactPhone, err = c.seal("contact_phone", *uu.ContactPhone); err != nil {
			return err
		}
	}
	if uu.Category != nil {
		s.Category = *uu.Category
	}
	if uu.HoldReason != nil {
		if s.HoldReason, err = c.seal("hold_reason", *uu.HoldReason); err != nil {
			return err
		}
	}
	if uu.FollowUpComments != nil {
		if s.FollowUpComments, err = c.seal("follow_up_comments", *uu.FollowUpComments); err != nil {
			return err
		}
	}
	if uu.Status != nil {
		s.Status = *uu.Status
	}
	if uu.NextReminderDate != nil {
		s.NextReminderDate = *uu.NextReminderDate
	}
	if uu.RemindersSuppressed != nil {
		s.RemindersSuppressed = *uu.RemindersSuppressed
	}
	return nil
}
