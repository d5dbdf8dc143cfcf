package jwt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgjwt "github.com/jhoicas/inventario-saga/pkg/jwt"
)

func TestGenerateParse(t *testing.T) {
	tok, err := pkgjwt.Generate("s3cret", "inventory-service", "inventario-saga", 5)
	require.NoError(t, err)

	svc, err := pkgjwt.Parse("s3cret", "inventario-saga", tok)
	require.NoError(t, err)
	assert.Equal(t, "inventory-service", svc)
}

func TestParse_Rechazos(t *testing.T) {
	tok, err := pkgjwt.Generate("s3cret", "inventory-service", "inventario-saga", 5)
	require.NoError(t, err)
	expired, err := pkgjwt.Generate("s3cret", "inventory-service", "inventario-saga", -1)
	require.NoError(t, err)

	_, err = pkgjwt.Parse("otro", "inventario-saga", tok)
	assert.Error(t, err, "firma incorrecta")
	_, err = pkgjwt.Parse("s3cret", "otro-issuer", tok)
	assert.Error(t, err, "issuer distinto")
	_, err = pkgjwt.Parse("s3cret", "inventario-saga", expired)
	assert.Error(t, err, "token expirado")
	_, err = pkgjwt.Parse("", "inventario-saga", tok)
	assert.Error(t, err, "secret vacío")
}

func TestGenerate_SecretVacio(t *testing.T) {
	_, err := pkgjwt.Generate("", "inventory-service", "inventario-saga", 5)
	assert.Error(t, err)
}
