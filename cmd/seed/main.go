// Crea usuarios directamente en la base, con contraseña provisional hasheada.
// Pensado para ambientes de desarrollo y para el alta inicial de
// administradores.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/campuskey/campuskey/internal/config"
	"github.com/campuskey/campuskey/internal/domain/repository"
	"github.com/campuskey/campuskey/internal/domain/types"
	"github.com/campuskey/campuskey/internal/security/password"
	"github.com/campuskey/campuskey/internal/store/pg"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "configs/config.yaml", "Path to YAML config")
		email      = flag.String("email", "", "Email del usuario (requerido)")
		name       = flag.String("name", "", "Nombre del usuario")
		roleStr    = flag.String("role", "STUDENT", "Rol: COLLEGE_ADMIN | ACADEMIC_COORDINATOR | FACULTY | STUDENT")
		pass       = flag.String("password", "", "Contraseña provisional (requerido, mínimo 8)")
		pushHandle = flag.String("push-handle", "", "Identificador ante el proveedor push (default: el email)")
	)
	flag.Parse()

	if *email == "" || *pass == "" {
		log.Fatal("usage: seed -email <email> -password <pass> [-role ROLE] [-name NAME]")
	}
	if len(*pass) < 8 {
		log.Fatal("la contraseña debe tener al menos 8 caracteres")
	}
	role, ok := types.ParseRole(*roleStr)
	if !ok {
		log.Fatalf("rol desconocido: %q", *roleStr)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{})
	if err != nil {
		log.Fatalf("pg: %v", err)
	}
	defer db.Close()

	hash, err := password.Hash(password.Default, *pass)
	if err != nil {
		log.Fatalf("hash: %v", err)
	}

	handle := *pushHandle
	if handle == "" && role.RequiresMFA() {
		handle = *email
	}

	id, err := db.Users().Create(ctx, repository.CreateUserInput{
		Email:        *email,
		Name:         *name,
		Role:         role,
		PasswordHash: hash,
		PushHandle:   handle,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			log.Fatalf("el email %s ya está registrado", *email)
		}
		log.Fatalf("create: %v", err)
	}

	fmt.Printf("usuario creado: id=%s email=%s role=%s\n", id, *email, role)
	if role.RequiresMFA() && handle == "" {
		fmt.Println("aviso: rol con segundo factor y sin push-handle; el login usará passcode")
	}
}
