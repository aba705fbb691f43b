package main

// @title Commerce Ledger API
// @version 1.0
// @description Transactional ledger for sales, stock, cash registers and wallets

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @tag.name Sales
// @tag.description Sale ingestion

// @tag.name Stock
// @tag.description Stock levels and the move ledger

// @tag.name Registers
// @tag.description Cash register lifecycle

// @tag.name Wallets
// @tag.description Safe and register wallets
