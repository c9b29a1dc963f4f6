package mockapi

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// seedStep fills one entity; steps run in order so references resolve
type seedStep struct {
	entity string
	gen    func(f *gofakeit.Faker, s *Server) Record
}

var seedPlan = []seedStep{
	{"almacenes", func(f *gofakeit.Faker, _ *Server) Record {
		city := f.City()
		return Record{"nombre": "Almacén " + city, "ciudad": city, "direccion": f.Street()}
	}},
	{"clientes", func(f *gofakeit.Faker, _ *Server) Record {
		return Record{
			"nombre":                 f.Name(),
			"telefono":               f.Phone(),
			"direccion":              f.Street(),
			"ciudad":                 f.City(),
			"email":                  f.Email(),
			"saldo_pendiente":        money(f, 0, 2000),
			"ultimo_pedido":          date(f),
			"frecuencia_compra_dias": f.Number(1, 30),
		}
	}},
	{"proveedores", func(f *gofakeit.Faker, _ *Server) Record {
		return Record{
			"nombre":    f.Company(),
			"ruc":       f.Numerify("20#########"),
			"telefono":  f.Phone(),
			"direccion": f.Street(),
			"email":     f.Email(),
		}
	}},
	{"productos", func(f *gofakeit.Faker, _ *Server) Record {
		return Record{
			"nombre":        f.ProductName(),
			"descripcion":   f.Sentence(6),
			"precio_compra": money(f, 5, 300),
			"activo":        f.Bool(),
		}
	}},
	{"presentaciones", func(f *gofakeit.Faker, s *Server) Record {
		kg := f.RandomString([]string{"5", "10", "25", "50"})
		return Record{
			"producto_id":  s.randomID(f, "productos"),
			"nombre":       f.ProductName() + " " + kg + " kg",
			"capacidad_kg": kg,
			"tipo":         f.RandomString([]string{"bruto", "procesado", "merma", "briqueta", "detalle"}),
			"precio_venta": money(f, 10, 500),
			"activo":       f.Bool(),
		}
	}},
	{"lotes", func(f *gofakeit.Faker, s *Server) Record {
		wet := decimal.NewFromFloat(f.Float64Range(100, 5000)).Round(2)
		dry := wet.Mul(decimal.NewFromFloat(f.Float64Range(0.6, 0.9))).Round(2)
		return Record{
			"producto_id":            s.randomID(f, "productos"),
			"proveedor_id":           s.randomID(f, "proveedores"),
			"descripcion":            f.Sentence(4),
			"peso_humedo_kg":         wet.StringFixed(2),
			"peso_seco_kg":           dry.StringFixed(2),
			"cantidad_disponible_kg": dry.Mul(decimal.NewFromFloat(f.Float64Range(0, 1))).StringFixed(2),
			"fecha_ingreso":          date(f),
		}
	}},
	{"ventas", func(f *gofakeit.Faker, s *Server) Record {
		qty := f.Number(1, 20)
		price := decimal.NewFromFloat(f.Price(10, 500)).Round(2)
		return Record{
			"cliente_id":  s.randomID(f, "clientes"),
			"almacen_id":  s.randomID(f, "almacenes"),
			"fecha":       date(f),
			"total":       price.Mul(decimal.NewFromInt(int64(qty))).StringFixed(2),
			"tipo_pago":   f.RandomString([]string{"contado", "credito"}),
			"estado_pago": f.RandomString([]string{"pendiente", "parcial", "pagado"}),
			"detalles": []any{map[string]any{
				"presentacion_id": s.randomID(f, "presentaciones"),
				"cantidad":        qty,
				"precio_unitario": price.StringFixed(2),
			}},
		}
	}},
	{"pedidos", func(f *gofakeit.Faker, s *Server) Record {
		return Record{
			"cliente_id":    s.randomID(f, "clientes"),
			"almacen_id":    s.randomID(f, "almacenes"),
			"fecha_pedido":  date(f),
			"fecha_entrega": f.DateRange(time.Now(), time.Now().AddDate(0, 2, 0)).Format(time.DateOnly),
			"estado":        f.RandomString([]string{"programado", "confirmado", "entregado", "cancelado"}),
			"notas":         f.Sentence(5),
			"detalles": []any{map[string]any{
				"presentacion_id": s.randomID(f, "presentaciones"),
				"cantidad":        f.Number(1, 20),
				"precio_estimado": money(f, 10, 500),
			}},
		}
	}},
	{"pagos", func(f *gofakeit.Faker, s *Server) Record {
		return Record{
			"venta_id":    s.randomID(f, "ventas"),
			"monto":       money(f, 10, 1500),
			"fecha":       date(f),
			"metodo_pago": f.RandomString([]string{"efectivo", "deposito", "transferencia", "tarjeta", "yape_plin", "otro"}),
			"referencia":  f.Numerify("OP-########"),
		}
	}},
	{"gastos", func(f *gofakeit.Faker, s *Server) Record {
		return Record{
			"descripcion": f.Sentence(4),
			"monto":       money(f, 5, 800),
			"fecha":       date(f),
			"categoria":   f.RandomString([]string{"logistica", "personal", "servicios", "alimentacion", "otros"}),
			"almacen_id":  s.randomID(f, "almacenes"),
		}
	}},
	{"depositos", func(f *gofakeit.Faker, s *Server) Record {
		return Record{
			"fecha_deposito":      date(f),
			"monto_depositado":    money(f, 100, 10000),
			"almacen_id":          s.randomID(f, "almacenes"),
			"referencia_bancaria": f.Numerify("DEP-##########"),
			"notas":               f.Sentence(5),
		}
	}},
}

// Seed inserts n fake records into every entity except usuarios
func (s *Server) Seed(n int) error {
	f := gofakeit.New(s.opts.FakerSeed)
	for _, step := range seedPlan {
		if _, ok := s.store.collection(step.entity); !ok {
			continue
		}
		for i := 0; i < n; i++ {
			if _, err := s.Insert(step.entity, step.gen(f, s)); err != nil {
				return fmt.Errorf("seed %s: %w", step.entity, err)
			}
		}
	}
	s.logger.Info("sandbox seeded", zap.Int("per_entity", n), zap.Int("entities", len(seedPlan)))
	return nil
}

// randomID picks an existing id of entity, or nil when it is empty
func (s *Server) randomID(f *gofakeit.Faker, entity string) any {
	coll, ok := s.store.collection(entity)
	if !ok {
		return nil
	}
	records := coll.all()
	if len(records) == 0 {
		return nil
	}
	return records[f.Number(0, len(records)-1)]["id"]
}

func money(f *gofakeit.Faker, lo, hi float64) string {
	return decimal.NewFromFloat(f.Price(lo, hi)).StringFixed(2)
}

func date(f *gofakeit.Faker) string {
	return f.DateRange(time.Now().AddDate(-1, 0, 0), time.Now()).Format(time.DateOnly)
}
