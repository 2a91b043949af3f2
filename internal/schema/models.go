// Package schema holds the record models the CLI can bulk load and the
// registry that maps model names to them.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// Node is a row of the content tree table.
type Node struct {
	ID             int32      `db:"id,identity" json:"id"`
	UniqueID       uuid.UUID  `db:"uniqueId,unique" json:"uniqueId"`
	ParentID       int32      `db:"parentId" json:"parentId"`
	Level          int16      `db:"level" json:"level"`
	Path           string     `db:"path,size=150" json:"path"`
	SortOrder      int32      `db:"sortOrder" json:"sortOrder"`
	Trashed        bool       `db:"trashed" json:"trashed"`
	NodeUser       *int32     `db:"nodeUser" json:"nodeUser,omitempty"`
	Text           *string    `db:"text,size=255" json:"text,omitempty"`
	NodeObjectType *uuid.UUID `db:"nodeObjectType" json:"nodeObjectType,omitempty"`
	CreateDate     time.Time  `db:"createDate,type=datetime" json:"createDate"`
}

func (Node) TableName() string { return "umbracoNode" }

// Language is a configured content language.
type Language struct {
	ID                 int16   `db:"id,identity" json:"id"`
	ISOCode            *string `db:"languageISOCode,size=14,unique" json:"languageISOCode,omitempty"`
	CultureName        *string `db:"languageCultureName,size=100" json:"languageCultureName,omitempty"`
	IsDefault          bool    `db:"isDefaultVariantLang" json:"isDefaultVariantLang"`
	Mandatory          bool    `db:"mandatory" json:"mandatory"`
	FallbackLanguageID *int32  `db:"fallbackLanguageId" json:"fallbackLanguageId,omitempty"`
}

func (Language) TableName() string { return "umbracoLanguage" }

// KeyValue is an entry of the key/value store.
type KeyValue struct {
	Key     string    `db:"key,size=256,key" json:"key"`
	Value   *string   `db:"value,custom=nvarcharmax" json:"value,omitempty"`
	Updated time.Time `db:"updated,type=datetime" json:"updated"`
}

func (KeyValue) TableName() string { return "umbracoKeyValue" }

// PropertyData is one property value of a content version.
type PropertyData struct {
	ID             int32      `db:"id,identity" json:"id"`
	VersionID      int32      `db:"versionId" json:"versionId"`
	PropertyTypeID int32      `db:"propertyTypeId" json:"propertyTypeId"`
	LanguageID     *int32     `db:"languageId" json:"languageId,omitempty"`
	Segment        *string    `db:"segment,size=256" json:"segment,omitempty"`
	IntValue       *int32     `db:"intValue" json:"intValue,omitempty"`
	DecimalValue   *string    `db:"decimalValue,type=decimal,precision=38,scale=6" json:"decimalValue,omitempty"`
	DateValue      *time.Time `db:"dateValue,type=datetime" json:"dateValue,omitempty"`
	VarcharValue   *string    `db:"varcharValue,size=512" json:"varcharValue,omitempty"`
	TextValue      *string    `db:"textValue,custom=ntext" json:"textValue,omitempty"`
}

func (PropertyData) TableName() string { return "umbracoPropertyData" }
