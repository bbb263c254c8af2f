package models

import "github.com/golang-jwt/jwt/v5"

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// HostClaims is the JWT payload identifying a host.
type HostClaims struct {
	HostID   string `json:"host_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}
