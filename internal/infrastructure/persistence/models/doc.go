// Package models contains GORM persistence models for the tables the service
// reads and writes. The schema itself is owned by the SQL migrations; these
// structs map only the columns the Go code touches.
//
// Domain types stay free of ORM tags. Each model converts to and from its
// domain type with ToDomain / XxxModelFromDomain.
package models
