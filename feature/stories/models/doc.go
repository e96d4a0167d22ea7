// Package models defines the field names and read views of story records.
package models
